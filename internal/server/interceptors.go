package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
)

const requestIDHeader = "x-request-id"

// UnaryInterceptor tags each call with a request id, logs its outcome and converts domain
// errors to gRPC status errors.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(requestIDHeader); len(vals) > 0 {
				reqID = vals[0]
			}
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}
		reqLogger := logger.With("req_id", reqID, "method", info.FullMethod)
		ctx = common.WithRequestID(ctx, reqID)
		ctx = common.WithLogger(ctx, reqLogger)

		resp, err := handler(ctx, req)
		err = common.ToStatus(err)
		elapsed := time.Since(start).Milliseconds()
		if err != nil {
			reqLogger.Warn("rpc.failed", "code", status.Code(err).String(), "error", err, "elapsed_ms", elapsed)
			return nil, err
		}
		reqLogger.Info("rpc.ok", "elapsed_ms", elapsed)
		return resp, nil
	}
}
