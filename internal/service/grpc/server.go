package grpcsvc

import (
	"errors"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server объединяет gRPC сервер, health-сервис и метрики вызовов.
type Server struct {
	*grpc.Server

	Health  *health.Server
	Metrics *promgrpc.ServerMetrics
}

// ServerOption настраивает Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger     *log.Entry
	registerer prometheus.Registerer
	extra      []grpc.ServerOption
}

// WithServerLogger задаёт логгер интерсепторов.
func WithServerLogger(logger *log.Entry) ServerOption {
	return func(o *serverOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegisterer задаёт реестр Prometheus для метрик вызовов.
func WithRegisterer(registerer prometheus.Registerer) ServerOption {
	return func(o *serverOptions) {
		o.registerer = registerer
	}
}

// WithGRPCOptions передаёт дополнительные опции grpc.NewServer.
func WithGRPCOptions(opts ...grpc.ServerOption) ServerOption {
	return func(o *serverOptions) {
		o.extra = append(o.extra, opts...)
	}
}

// NewServer собирает gRPC сервер с цепочкой интерсепторов, health и reflection.
// Повторная регистрация метрик в том же реестре переиспользует уже зарегистрированный коллектор.
func NewServer(opts ...ServerOption) *Server {
	cfg := serverOptions{
		logger:     log.WithField("component", "grpc"),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	grpcMetrics := promgrpc.NewServerMetrics()
	if cfg.registerer != nil {
		if err := cfg.registerer.Register(grpcMetrics); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
					grpcMetrics = existing
				}
			} else {
				cfg.logger.WithError(err).Warn("failed to register grpc metrics")
			}
		}
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor(), UnaryErrorInterceptor(cfg.logger)),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor(), StreamErrorInterceptor(cfg.logger)),
	}, cfg.extra...)

	srv := grpc.NewServer(serverOpts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthServer)
	reflection.Register(srv)
	grpcMetrics.InitializeMetrics(srv)

	return &Server{Server: srv, Health: healthServer, Metrics: grpcMetrics}
}

// SetServing переключает общий статус health-сервиса.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.Health.SetServingStatus("", st)
}
