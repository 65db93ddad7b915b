package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/offer-chat/internal/api"
	"github.com/and161185/offer-chat/internal/auth"
	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/repository/memstore"
	"github.com/and161185/offer-chat/internal/service"
)

const bufSize = 1 << 20

var signKey = []byte("test-secret")

type harness struct {
	store  *memstore.Store
	cc     *grpc.ClientConn
	market *MarketClient
}

func startBufGRPC(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := memstore.New()
	offers := service.NewOfferService(service.OfferDeps{
		Users:         store.Users(),
		Products:      store.Products(),
		Offers:        store.Offers(),
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Registry:      service.NewRegistry(store.Conversations(), log),
		Logger:        log,
	})
	products := service.NewProductService(store.Users(), store.Products())

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(Chain(log, auth.NewVerifier(signKey)))
	RegisterMarketServer(gs, New(offers, products))
	healthpb.RegisterHealthServer(gs, health.NewServer())
	go func() { _ = gs.Serve(lis) }()

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	cc, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return &harness{store: store, cc: cc, market: NewMarketClient(cc)}
}

/************ helpers ************/
func as(t *testing.T, userID string) context.Context {
	t.Helper()
	tok, err := auth.Issue(signKey, auth.Identity{UserID: userID, FirstName: strings.ToUpper(userID[len(userID)-1:])}, time.Hour)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if st, _ := status.FromError(err); st.Code() != code {
		t.Fatalf("want %s, got %v", code, err)
	}
}

func TestServer_E2E_OfferFlow(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	p, err := h.market.CreateProduct(as(t, "user_a"), &api.CreateProductRequest{Name: "Road bike", Description: "54cm frame", Price: 50000})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if p.OwnerID != "user_a" || p.ID == "" {
		t.Fatalf("unexpected product: %+v", p)
	}

	got, err := h.market.GetProduct(context.Background(), &api.GetProductRequest{ID: p.ID})
	if err != nil || got.Name != "Road bike" {
		t.Fatalf("get product: %v %+v", err, got)
	}

	o, err := h.market.CreateOffer(as(t, "user_b"), &api.CreateOfferRequest{ProductID: p.ID, Amount: 45000, Message: "  can pick up today "})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if o.Status != "pending" || o.SenderID != "user_b" {
		t.Fatalf("unexpected offer: %+v", o)
	}

	recv, err := h.market.ListOffers(as(t, "user_a"), &api.ListOffersRequest{Box: api.BoxReceived})
	if err != nil || len(recv.Offers) != 1 {
		t.Fatalf("received: %v %+v", err, recv)
	}
	sent, err := h.market.ListOffers(as(t, "user_b"), &api.ListOffersRequest{Box: api.BoxSent})
	if err != nil || len(sent.Offers) != 1 || sent.Offers[0].ID != o.ID {
		t.Fatalf("sent: %v %+v", err, sent)
	}

	_, err = h.market.AcceptOffer(as(t, "user_b"), &api.AcceptOfferRequest{OfferID: o.ID})
	wantCode(t, err, codes.PermissionDenied)

	acc, err := h.market.AcceptOffer(as(t, "user_a"), &api.AcceptOfferRequest{OfferID: o.ID})
	if err != nil || acc.ConversationID == "" {
		t.Fatalf("accept: %v %+v", err, acc)
	}
	_, err = h.market.AcceptOffer(as(t, "user_a"), &api.AcceptOfferRequest{OfferID: o.ID})
	wantCode(t, err, codes.FailedPrecondition)

	cid := uuid.FromStringOrNil(acc.ConversationID)
	msgs, err := h.store.Messages().ListByConversation(context.Background(), cid)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("opening message: %v %d", err, len(msgs))
	}
	if msgs[0].SenderID != "user_b" || msgs[0].Content != "can pick up today" {
		t.Fatalf("unexpected opening message: %+v", msgs[0])
	}
}

func TestServer_Reject(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	p, err := h.market.CreateProduct(as(t, "user_a"), &api.CreateProductRequest{Name: "Desk", Description: "oak", Price: 100})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	o, err := h.market.CreateOffer(as(t, "user_b"), &api.CreateOfferRequest{ProductID: p.ID, Amount: 90})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if _, err := h.market.RejectOffer(as(t, "user_a"), &api.RejectOfferRequest{OfferID: o.ID}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err = h.market.RejectOffer(as(t, "user_a"), &api.RejectOfferRequest{OfferID: o.ID})
	wantCode(t, err, codes.NotFound)

	recv, err := h.market.ListOffers(as(t, "user_a"), &api.ListOffersRequest{})
	if err != nil || len(recv.Offers) != 0 {
		t.Fatalf("rejected offers must be gone: %v %+v", err, recv)
	}
}

func TestServer_Errors(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	_, err := h.market.CreateProduct(context.Background(), &api.CreateProductRequest{Name: "Lamp", Description: "x", Price: 1})
	wantCode(t, err, codes.Unauthenticated)

	_, err = h.market.CreateProduct(as(t, "user_a"), &api.CreateProductRequest{Name: "ab", Description: "x", Price: 1})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.market.CreateOffer(as(t, "user_b"), &api.CreateOfferRequest{ProductID: "nope", Amount: 1})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.market.CreateOffer(as(t, "user_b"), &api.CreateOfferRequest{ProductID: "7b0d7f2e-8c6a-4c1a-9a43-3f1b8f2f7a10", Amount: 1})
	wantCode(t, err, codes.NotFound)

	_, err = h.market.ListOffers(as(t, "user_b"), &api.ListOffersRequest{Box: "archive"})
	wantCode(t, err, codes.InvalidArgument)

	_, err = h.market.AcceptOffer(as(t, "user_a"), &api.AcceptOfferRequest{OfferID: ""})
	wantCode(t, err, codes.InvalidArgument)
}

func TestServer_Health(t *testing.T) {
	t.Parallel()
	h := startBufGRPC(t)

	resp, err := healthpb.NewHealthClient(h.cc).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health: %v %v", err, resp.GetStatus())
	}
}

func TestToStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		code codes.Code
	}{
		{errs.ErrUnauthorized, codes.Unauthenticated},
		{errs.ErrForbidden, codes.PermissionDenied},
		{fmt.Errorf("offer: %w", errs.ErrNotFound), codes.NotFound},
		{errs.ErrInvalidState, codes.FailedPrecondition},
		{fmt.Errorf("%w: amount must be positive", errs.ErrValidation), codes.InvalidArgument},
		{&service.RateLimitError{RetryAfter: time.Second}, codes.ResourceExhausted},
		{errs.ErrUnresolvable, codes.Internal},
		{errors.New("pq: connection refused"), codes.Internal},
	}
	for _, c := range cases {
		err := toStatus(c.err, "op")
		wantCode(t, err, c.code)
		if c.code == codes.Internal && strings.Contains(err.Error(), "refused") {
			t.Fatalf("internal details leaked: %v", err)
		}
	}
}
