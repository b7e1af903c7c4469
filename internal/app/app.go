package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/engine"
	healthcheck "github.com/vladislavdragonenkov/chargemock/internal/health"
	"github.com/vladislavdragonenkov/chargemock/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/chargemock/internal/service/grpc"
	"github.com/vladislavdragonenkov/chargemock/internal/service/idempotency"
	"github.com/vladislavdragonenkov/chargemock/internal/service/outbox"
	"github.com/vladislavdragonenkov/chargemock/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает MockService, HTTP-метрики и фоновые воркеры и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}
	feePolicy, err := domain.ParseFeePolicy(cfg.FeePolicy)
	if err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Kafka опциональна: без брокеров события уходят в лог.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)
	publisher, dlqPublisher := outboxPublishers(kafkaProducer, cfg, logger)

	eng := engine.New(deps.store,
		engine.WithFeePolicy(feePolicy),
		engine.WithOutbox(deps.outboxRepo),
		engine.WithMetrics(metrics.NewEngineMetrics()),
		engine.WithLogger(logger.WithField("component", "engine")),
	)
	mockService := grpcsvc.NewMockService(eng, deps.idempotencyRepo, logger.WithField("layer", "grpc"))
	grpcServer, healthServer := newGRPCServer(mockService, logger)

	healthHandler := healthcheck.NewHandler(version.Current())
	healthHandler.RegisterChecker("object_store", healthcheck.NewObjectStoreChecker(deps.store))
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending, 0))
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}

	workers := startWorkers(ctx, logger,
		outbox.NewWorker(deps.outboxRepo, publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		).Run,
		idempotency.NewCleanupWorker(deps.idempotencyRepo,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
			idempotency.WithMetrics(metrics.NewCleanupMetrics(prometheus.DefaultRegisterer)),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		).Run,
	)
	defer workers.stop(logger)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer собирает gRPC сервер с метриками, health и reflection.
func newGRPCServer(mockService grpcsvc.MockServiceServer, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterMockServiceServer(grpcServer, mockService)
	grpcMetrics.InitializeMetrics(grpcServer)

	// reflection нужен grpcurl и cmd/loadtest при отладке
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

// stopGRPC пытается остановить сервер мягко и обрывает соединения по таймауту.
func stopGRPC(grpcServer *grpc.Server, logger *log.Entry) {
	stoppedCh := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		grpcServer.Stop()
	}
}

// backgroundWorkers — набор фоновых циклов с общей отменой.
type backgroundWorkers struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startWorkers(ctx context.Context, logger *log.Entry, runs ...func(context.Context)) *backgroundWorkers {
	workerCtx, cancel := context.WithCancel(ctx)
	workers := &backgroundWorkers{cancel: cancel}
	for _, run := range runs {
		workers.wg.Add(1)
		go func(run func(context.Context)) {
			defer workers.wg.Done()
			run(workerCtx)
		}(run)
	}
	logger.WithField("workers", len(runs)).Info("background workers started")
	return workers
}

// stop отменяет воркеры и ждёт их завершения не дольше shutdownTimeout.
func (w *backgroundWorkers) stop(logger *log.Entry) {
	if w == nil {
		return
	}
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warn("background workers did not stop in time")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
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
