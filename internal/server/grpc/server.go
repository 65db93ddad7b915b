// Package grpcserver exposes the offer marketplace over gRPC.
package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/offer-chat/internal/api"
	"github.com/and161185/offer-chat/internal/auth"
	"github.com/and161185/offer-chat/internal/convert"
	"github.com/and161185/offer-chat/internal/errs"
	"github.com/and161185/offer-chat/internal/model"
	"github.com/and161185/offer-chat/internal/service"
)

// Server wires services into Market handlers.
type Server struct {
	offers   service.OfferService
	products service.ProductService
}

var _ MarketServer = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(offers service.OfferService, products service.ProductService) *Server {
	return &Server{offers: offers, products: products}
}

// --- Products ---

// CreateProduct stores a product owned by the caller.
func (s *Server) CreateProduct(ctx context.Context, req *api.CreateProductRequest) (*api.Product, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.products.Create(ctx, id.User(), req.Name, req.Description, req.Price)
	if err != nil {
		return nil, toStatus(err, "create product")
	}
	out := convert.ToAPIProduct(p)
	return &out, nil
}

// GetProduct returns a product by id.
func (s *Server) GetProduct(ctx context.Context, req *api.GetProductRequest) (*api.Product, error) {
	pid, err := convert.ParseID("id", req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	p, err := s.products.Get(ctx, pid)
	if err != nil {
		return nil, toStatus(err, "get product")
	}
	out := convert.ToAPIProduct(p)
	return &out, nil
}

// --- Offers ---

// CreateOffer makes a pending offer from the caller.
func (s *Server) CreateOffer(ctx context.Context, req *api.CreateOfferRequest) (*api.Offer, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	pid, err := convert.ParseID("productId", req.ProductID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	o, err := s.offers.Create(ctx, id.User(), pid, req.Amount, req.Message)
	if err != nil {
		return nil, toStatus(err, "create offer")
	}
	out := convert.ToAPIOffer(*o)
	return &out, nil
}

// AcceptOffer accepts a pending offer on the caller's product and returns
// the conversation it opened.
func (s *Server) AcceptOffer(ctx context.Context, req *api.AcceptOfferRequest) (*api.AcceptOfferResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	oid, err := convert.ParseID("offerId", req.OfferID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	cid, err := s.offers.Accept(ctx, oid, id.User())
	if err != nil {
		return nil, toStatus(err, "accept offer")
	}
	return &api.AcceptOfferResponse{ConversationID: cid.String()}, nil
}

// RejectOffer deletes a pending offer on the caller's product.
func (s *Server) RejectOffer(ctx context.Context, req *api.RejectOfferRequest) (*api.RejectOfferResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	oid, err := convert.ParseID("offerId", req.OfferID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.offers.Reject(ctx, oid, id.UserID); err != nil {
		return nil, toStatus(err, "reject offer")
	}
	return &api.RejectOfferResponse{}, nil
}

// ListOffers returns the received (default) or sent offers of the caller.
func (s *Server) ListOffers(ctx context.Context, req *api.ListOffersRequest) (*api.ListOffersResponse, error) {
	id, err := identity(ctx)
	if err != nil {
		return nil, err
	}
	var list func(context.Context, string) ([]model.Offer, error)
	switch req.Box {
	case "", api.BoxReceived:
		list = s.offers.ListReceived
	case api.BoxSent:
		list = s.offers.ListSent
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown box %q", req.Box)
	}
	offers, err := list(ctx, id.UserID)
	if err != nil {
		return nil, toStatus(err, "list offers")
	}
	return &api.ListOffersResponse{Offers: convert.ToAPIOffers(offers)}, nil
}

func identity(ctx context.Context) (auth.Identity, error) {
	id, ok := auth.FromContext(ctx)
	if !ok || id.UserID == "" {
		return auth.Identity{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return id, nil
}

// toStatus maps service errors onto gRPC codes without leaking internals.
func toStatus(err error, op string) error {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, errs.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, "offer already processed")
	case errors.Is(err, errs.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	default:
		return status.Errorf(codes.Internal, "%s: internal", op)
	}
}
