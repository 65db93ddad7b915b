package grpcserver

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor for structured logging.
// Payloads are never logged.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		fields := []zap.Field{
			zap.String("rpc", strings.TrimPrefix(info.FullMethod, "/"+ServiceName+"/")),
			zap.String("code", status.Code(err).String()),
			zap.Duration("dur", time.Since(start)),
		}
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			fields = append(fields, zap.String("peer", p.Addr.String()))
		}
		if status.Code(err) == codes.Internal {
			log.Warn("grpc", append(fields, zap.Error(err))...)
		} else {
			log.Info("grpc", fields...)
		}
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("rpc", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}

func interceptors(log *zap.Logger, v TokenVerifier) []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{RecoverUnary(log), LoggingUnary(log), AuthUnary(v)}
}

// Chain returns the interceptor order used by the server: recover, logging, auth.
// Rejected credentials are therefore still logged.
func Chain(log *zap.Logger, v TokenVerifier) grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(interceptors(log, v)...)
}
