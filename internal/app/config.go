package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/messaging/kafka"
)

const (
	// StorageDriverMemory хранит idempotency-ключи и outbox в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит idempotency-ключи и outbox в PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// ErrUnsupportedStorageDriver возвращается для неизвестного значения StorageDriver.
var ErrUnsupportedStorageDriver = errors.New("unsupported storage driver")

// Config описывает настройки запуска песочницы.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int

	// KafkaBrokers — список брокеров через запятую; пустая строка отключает Kafka.
	KafkaBrokers  string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending — порог backlog, после которого /healthz отдаёт degraded.
	OutboxMaxPending int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// FeePolicy — строка вида flat:<minor> или percent:<bps>+<fixed>.
	FeePolicy string
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PostgresMaxConns:            10,
		KafkaTopic:                  kafka.TopicEvents,
		KafkaDLQTopic:               kafka.TopicDeadLetterQueue,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            50 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 1000,
		FeePolicy:                   domain.DefaultFee.String(),
	}
}

// Validate проверяет значения, которые нельзя исправить подстановкой значения по умолчанию.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres dsn is required for postgres storage driver")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedStorageDriver, c.StorageDriver)
	}

	_, err := domain.ParseFeePolicy(c.FeePolicy)
	return err
}
