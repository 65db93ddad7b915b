package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"github.com/and161185/offer-chat/internal/api"
)

// ServiceName is the fully qualified name of the Market service.
const ServiceName = "offerchat.v1.Market"

// MarketServer is the server API of the Market service.
type MarketServer interface {
	CreateProduct(context.Context, *api.CreateProductRequest) (*api.Product, error)
	GetProduct(context.Context, *api.GetProductRequest) (*api.Product, error)
	CreateOffer(context.Context, *api.CreateOfferRequest) (*api.Offer, error)
	AcceptOffer(context.Context, *api.AcceptOfferRequest) (*api.AcceptOfferResponse, error)
	RejectOffer(context.Context, *api.RejectOfferRequest) (*api.RejectOfferResponse, error)
	ListOffers(context.Context, *api.ListOffersRequest) (*api.ListOffersResponse, error)
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// unary builds a method descriptor that decodes Req and runs call through
// the server interceptor chain.
func unary[Req, Resp any](name string, call func(MarketServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if ic == nil {
				return call(srv.(MarketServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(MarketServer), ctx, req.(*Req))
			})
		},
	}
}

// MarketServiceDesc describes the Market service for grpc.Server.
var MarketServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateProduct", MarketServer.CreateProduct),
		unary("GetProduct", MarketServer.GetProduct),
		unary("CreateOffer", MarketServer.CreateOffer),
		unary("AcceptOffer", MarketServer.AcceptOffer),
		unary("RejectOffer", MarketServer.RejectOffer),
		unary("ListOffers", MarketServer.ListOffers),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "offerchat/v1/market",
}

// RegisterMarketServer registers srv on s.
func RegisterMarketServer(s grpc.ServiceRegistrar, srv MarketServer) {
	s.RegisterService(&MarketServiceDesc, srv)
}

// MarketClient calls the Market service with the JSON codec.
type MarketClient struct {
	cc grpc.ClientConnInterface
}

// NewMarketClient constructs MarketClient.
func NewMarketClient(cc grpc.ClientConnInterface) *MarketClient {
	return &MarketClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MarketClient) CreateProduct(ctx context.Context, in *api.CreateProductRequest, opts ...grpc.CallOption) (*api.Product, error) {
	return invoke[api.Product](ctx, c.cc, "CreateProduct", in, opts)
}

func (c *MarketClient) GetProduct(ctx context.Context, in *api.GetProductRequest, opts ...grpc.CallOption) (*api.Product, error) {
	return invoke[api.Product](ctx, c.cc, "GetProduct", in, opts)
}

func (c *MarketClient) CreateOffer(ctx context.Context, in *api.CreateOfferRequest, opts ...grpc.CallOption) (*api.Offer, error) {
	return invoke[api.Offer](ctx, c.cc, "CreateOffer", in, opts)
}

func (c *MarketClient) AcceptOffer(ctx context.Context, in *api.AcceptOfferRequest, opts ...grpc.CallOption) (*api.AcceptOfferResponse, error) {
	return invoke[api.AcceptOfferResponse](ctx, c.cc, "AcceptOffer", in, opts)
}

func (c *MarketClient) RejectOffer(ctx context.Context, in *api.RejectOfferRequest, opts ...grpc.CallOption) (*api.RejectOfferResponse, error) {
	return invoke[api.RejectOfferResponse](ctx, c.cc, "RejectOffer", in, opts)
}

func (c *MarketClient) ListOffers(ctx context.Context, in *api.ListOffersRequest, opts ...grpc.CallOption) (*api.ListOffersResponse, error) {
	return invoke[api.ListOffersResponse](ctx, c.cc, "ListOffers", in, opts)
}
