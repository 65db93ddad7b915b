package grpcserver

import (
	"testing"

	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/and161185/offer-chat/internal/api"
)

func TestJSONCodec_Registered(t *testing.T) {
	t.Parallel()
	if c := encoding.GetCodec(CodecName); c == nil {
		t.Fatalf("codec %q not registered", CodecName)
	}
}

func TestJSONCodec_Structs(t *testing.T) {
	t.Parallel()
	c := jsonCodec{}
	b, err := c.Marshal(&api.CreateOfferRequest{ProductID: "p1", Amount: 1500})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"productId":"p1","amount":1500}` {
		t.Fatalf("unexpected wire form: %s", b)
	}
	var back api.CreateOfferRequest
	if err := c.Unmarshal(b, &back); err != nil || back.Amount != 1500 {
		t.Fatalf("Unmarshal: %v %+v", err, back)
	}
}

func TestJSONCodec_ProtoFallback(t *testing.T) {
	t.Parallel()
	c := jsonCodec{}
	in := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out healthpb.HealthCheckResponse
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status lost: %v", out.GetStatus())
	}
}
