package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func statusCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

func UnaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		logger.Debug("request started", "method", info.FullMethod)

		resp, err := handler(ctx, req)

		attrs := []any{
			"method", info.FullMethod,
			"duration_ms", time.Since(start).Milliseconds(),
			"code", statusCode(err).String(),
		}
		if err != nil {
			logger.Warn("request failed", append(attrs, "error", err)...)
		} else {
			logger.Debug("request completed", attrs...)
		}
		return resp, err
	}
}

// UnaryRecoveryInterceptor turns a handler panic into codes.Internal so one
// bad plugin does not take the server down.
func UnaryRecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panicked", "method", info.FullMethod, "panic", fmt.Sprint(r))
				resp, err = nil, status.Errorf(codes.Internal, "handler panicked: %v", r)
			}
		}()
		return handler(ctx, req)
	}
}

func UnaryClientLoggingInterceptor(logger *slog.Logger) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()

		err := invoker(ctx, method, req, reply, cc, opts...)

		attrs := []any{
			"method", method,
			"target", cc.Target(),
			"duration_ms", time.Since(start).Milliseconds(),
			"code", statusCode(err).String(),
		}
		if err != nil {
			logger.Debug("client request failed", append(attrs, "error", err)...)
		} else {
			logger.Debug("client request completed", attrs...)
		}
		return err
	}
}
