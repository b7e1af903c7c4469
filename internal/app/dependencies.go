package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/chargemock/internal/health"
	"github.com/vladislavdragonenkov/chargemock/internal/storage/memory"
	"github.com/vladislavdragonenkov/chargemock/internal/storage/postgres"
)

const storagePingTimeout = 2 * time.Second

// runtimeDependencies — хранилища, выбранные конфигурацией.
// Объекты песочницы всегда живут в памяти; драйвер определяет, где
// хранятся idempotency-ключи и outbox.
type runtimeDependencies struct {
	store           domain.ObjectStore
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  healthcheck.Checker
	closeFn         func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies создаёт хранилища для cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		return &runtimeDependencies{
			store:           memory.NewObjectStore(),
			outboxRepo:      memory.NewOutboxRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
		}, nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStorageDriver, cfg.StorageDriver)
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres dsn is required for %s storage driver", StorageDriverPostgres)
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxOpenConns(cfg.PostgresMaxConns))
	if err != nil {
		return nil, err
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	checker := healthcheck.NewSimpleChecker("postgres", func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), storagePingTimeout)
		defer cancel()
		return store.Ping(pingCtx)
	})

	return &runtimeDependencies{
		store:           memory.NewObjectStore(),
		outboxRepo:      postgres.NewOutboxRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  checker,
		closeFn:         store.Close,
	}, nil
}
