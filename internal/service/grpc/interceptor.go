package grpcsvc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
)

// UnaryErrorInterceptor превращает доменные ошибки обработчиков в gRPC статусы и логирует их.
func UnaryErrorInterceptor(logger *log.Entry) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.WithField("component", "grpc")
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		st := StatusFromError(err)
		logCall(logger, info.FullMethod, st.Code(), time.Since(started), err)
		return nil, st.Err()
	}
}

// StreamErrorInterceptor делает то же для потоковых методов.
func StreamErrorInterceptor(logger *log.Entry) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = log.WithField("component", "grpc")
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		started := time.Now()
		err := handler(srv, ss)
		if err == nil {
			return nil
		}
		st := StatusFromError(err)
		logCall(logger, info.FullMethod, st.Code(), time.Since(started), err)
		return st.Err()
	}
}

func logCall(logger *log.Entry, method string, code codes.Code, elapsed time.Duration, err error) {
	entry := logger.WithFields(log.Fields{
		"method":      method,
		"code":        code.String(),
		"duration_ms": elapsed.Milliseconds(),
	}).WithError(err)

	switch code {
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		entry.Error("grpc call failed")
	default:
		entry.Warn("grpc call rejected")
	}
}
