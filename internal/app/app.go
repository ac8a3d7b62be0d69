package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/marketplace/internal/service/grpc"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/tracing"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает ядро маркетплейса и блокируется до отмены ctx или ошибки gRPC сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracer, err := tracing.InitTracer(ctx, tracingConfig(cfg))
	if err != nil {
		logger.WithError(err).Warn("failed to init tracing, continuing without it")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer shutdownTracing(shutdownTracer, logger)

	storageDeps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if storageDeps.closeFn != nil {
		defer func() {
			if err := storageDeps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}()
	}

	readCache, redisClient := initCache(ctx, cfg.RedisAddr, cfg.CacheTTL, logger)
	defer closeRedis(redisClient, logger)

	deps := NewDependencies(storageDeps.store, readCache, metrics.NewOrderMetrics(), cfg.RetryMaxAttempts, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", storageDeps.storageChecker)
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxChecker(storageDeps.store, cfg.OutboxMaxLag))
	if redisClient != nil {
		healthHandler.RegisterChecker("redis", healthcheck.NewSimpleChecker("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	var workers sync.WaitGroup

	if publisher, dlq := outboxPublishers(producer, logger); publisher != nil {
		worker := outbox.NewWorker(storageDeps.store, publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workerCtx)
		}()
	} else {
		logger.Warn("kafka is not configured, outbox events stay pending")
	}

	cleanup := outbox.NewCleanupWorker(storageDeps.store,
		outbox.WithCleanupLogger(logger.WithField("component", "outbox-cleanup-worker")),
		outbox.WithCleanupInterval(cfg.OutboxCleanupEvery),
		outbox.WithCleanupBatchSize(cfg.OutboxBatchSize),
		outbox.WithRetention(cfg.OutboxRetention),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanup.Run(workerCtx)
	}()

	consumer, _ := initCommandConsumer(cfg, deps.Orders, producer, logger)
	if consumer != nil {
		if err := consumer.Start(workerCtx); err != nil {
			logger.WithError(err).Warn("failed to start order command consumer")
			consumer = nil
		}
	}

	server := grpcsvc.NewServer(grpcsvc.WithServerLogger(logger.WithField("layer", "grpc")))
	server.SetServing(true)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		stopBackground(cancelWorkers, &workers, consumer, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC server listening on %s", lis.Addr())
		errCh <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gRPC server")
		server.SetServing(false)
		stopGRPC(server.Server, logger)
		shutdownHTTP(metricsSrv, logger)
		stopBackground(cancelWorkers, &workers, consumer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopBackground(cancelWorkers, &workers, consumer, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func tracingConfig(cfg Config) tracing.Config {
	tc := tracing.DefaultConfig("marketplace")
	tc.ServiceVersion = version.GetVersion()
	tc.Enabled = cfg.TracingEnabled
	tc.OTLPEndpoint = cfg.OTLPEndpoint
	return tc
}

// stopGRPC ждёт завершения активных вызовов не дольше shutdownTimeout.
func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop timed out, forcing stop")
		server.Stop()
	}
}

// stopBackground останавливает consumer и outbox-воркеры.
func stopBackground(cancel context.CancelFunc, workers *sync.WaitGroup, consumer *kafka.Consumer, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	if workers != nil {
		workers.Wait()
	}
}

func shutdownTracing(shutdown func(context.Context) error, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.WithError(err).Warn("failed to flush traces")
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("metrics available at %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
