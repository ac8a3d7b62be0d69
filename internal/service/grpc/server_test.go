package grpcsvc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/marketplace/internal/service/grpc"
)

const bufSize = 1024 * 1024

const checkMethod = "/marketplace.test.Checker/Check"

// checkServiceDesc регистрирует метод, который всегда возвращает заданную ошибку.
func checkServiceDesc(fail error) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: "marketplace.test.Checker",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Check",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(healthpb.HealthCheckRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				handler := func(context.Context, any) (any, error) {
					if fail != nil {
						return nil, fail
					}
					return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
				}
				if interceptor == nil {
					return handler(ctx, in)
				}
				return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: checkMethod}, handler)
			},
		}},
	}
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func startServer(t *testing.T, fail error) (*grpcsvc.Server, *grpc.ClientConn) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	srv := grpcsvc.NewServer(
		grpcsvc.WithServerLogger(loggerForTests()),
		grpcsvc.WithRegisterer(prometheus.NewRegistry()),
	)
	desc := checkServiceDesc(fail)
	srv.RegisterService(&desc, struct{}{})

	go func() {
		_ = srv.Serve(listener)
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		_ = listener.Close()
	})
	return srv, conn
}

func TestServer_HealthFollowsServingFlag(t *testing.T) {
	srv, conn := startServer(t, nil)
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	srv.SetServing(true)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	srv.SetServing(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestServer_MapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "not found", err: domain.WrapOp("get", "order", "o-1", domain.ErrOrderNotFound), code: codes.NotFound},
		{name: "precondition", err: domain.ErrInvalidTransition, code: codes.FailedPrecondition},
		{name: "conflict", err: domain.ErrConflictRetryable, code: codes.Aborted},
		{name: "forbidden", err: domain.ErrForbiddenReviewer, code: codes.PermissionDenied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, conn := startServer(t, tc.err)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			out := new(healthpb.HealthCheckResponse)
			err := conn.Invoke(ctx, checkMethod, &healthpb.HealthCheckRequest{}, out)
			require.Error(t, err)
			require.Equal(t, tc.code, status.Code(err))
		})
	}
}

func TestServer_PassesSuccessfulResponses(t *testing.T) {
	_, conn := startServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := new(healthpb.HealthCheckResponse)
	require.NoError(t, conn.Invoke(ctx, checkMethod, &healthpb.HealthCheckRequest{}, out))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, out.GetStatus())
}

func TestNewServer_ReusesRegisteredMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := grpcsvc.NewServer(grpcsvc.WithServerLogger(loggerForTests()), grpcsvc.WithRegisterer(registry))
	second := grpcsvc.NewServer(grpcsvc.WithServerLogger(loggerForTests()), grpcsvc.WithRegisterer(registry))

	require.Same(t, first.Metrics, second.Metrics)
}
