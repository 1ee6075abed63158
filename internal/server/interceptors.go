package server

import (
	"context"
	"log/slog"
	"path"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/syllabus-sync/internal/common"
)

// RPCObserver is satisfied by *metrics.Metrics.
type RPCObserver interface {
	ObserveRPC(method, code string, elapsed time.Duration)
}

const requestIDHeader = "x-request-id"

// UnaryInterceptor tags each call with a request id, recovers panics,
// logs the outcome and records its latency.
func UnaryInterceptor(logger *slog.Logger, obs RPCObserver) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		method := path.Base(info.FullMethod)

		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(requestIDHeader); len(v) > 0 {
				reqID = v[0]
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, reqID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, reqID))

		defer func() {
			if r := recover(); r != nil {
				logger.Error("rpc.panic", "method", method, "request_id", reqID, "panic", r, "stack", string(debug.Stack()))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
			code := status.Code(err)
			if obs != nil {
				obs.ObserveRPC(method, code.String(), time.Since(start))
			}
			logger.Info("rpc.done",
				"method", method,
				"request_id", reqID,
				"code", code.String(),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		}()
		return handler(ctx, req)
	}
}
