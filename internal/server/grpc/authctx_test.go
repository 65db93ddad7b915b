package grpcserver

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/offer-chat/internal/auth"
)

func ctxWithAuth(token string) context.Context {
	md := metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	})
	return metadata.NewIncomingContext(context.Background(), md)
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	ic := AuthUnary(auth.NewVerifier(key))
	var seen auth.Identity
	h := func(ctx context.Context, _ any) (any, error) {
		seen, _ = auth.FromContext(ctx)
		return "ok", nil
	}
	market := &grpc.UnaryServerInfo{FullMethod: fullMethod("AcceptOffer")}

	tok, err := auth.Issue(key, auth.Identity{UserID: "user_a"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ic(ctxWithAuth(tok), nil, market, h); err != nil {
		t.Fatalf("valid token: %v", err)
	}
	if seen.UserID != "user_a" {
		t.Fatalf("identity not stored: %+v", seen)
	}

	if _, err := ic(context.Background(), nil, market, h); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated without token, got %v", err)
	}
	if _, err := ic(ctxWithAuth("this-is-not-a-jwt"), nil, market, h); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated on bad token, got %v", err)
	}

	other, err := auth.Issue([]byte("other"), auth.Identity{UserID: "user_a"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ic(ctxWithAuth(other), nil, market, h); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated on foreign key, got %v", err)
	}

	health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	if _, err := ic(context.Background(), nil, health, h); err != nil {
		t.Fatalf("non-market methods must pass through: %v", err)
	}
	public := &grpc.UnaryServerInfo{FullMethod: fullMethod("GetProduct")}
	if _, err := ic(context.Background(), nil, public, h); err != nil {
		t.Fatalf("GetProduct is public: %v", err)
	}
}
