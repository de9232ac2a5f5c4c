package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/solatis/medaudit/internal/logger"
)

// UnaryInterceptor bounds each call by timeout, converts core errors to
// status errors and logs the outcome.
func UnaryInterceptor(log logger.Logger, timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		err = ToStatus(err)

		code := Code(err)
		fields := []interface{}{
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch code {
		case codes.OK:
			log.Debugw("gRPC request", fields...)
		case codes.Internal, codes.Unavailable, codes.FailedPrecondition:
			log.Errorw("gRPC request failed", append(fields, "error", err)...)
		default:
			log.Infow("gRPC request rejected", append(fields, "error", err)...)
		}

		return resp, err
	}
}
