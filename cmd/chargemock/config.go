package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/app"
)

const (
	envLogLevel                    = "CHARGEMOCK_LOG_LEVEL"
	envGRPCAddr                    = "CHARGEMOCK_GRPC_ADDR"
	envMetricsAddr                 = "CHARGEMOCK_METRICS_ADDR"
	envStorageDriver               = "CHARGEMOCK_STORAGE_DRIVER"
	envPostgresDSN                 = "CHARGEMOCK_POSTGRES_DSN"
	envPostgresAutoMigrate         = "CHARGEMOCK_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns            = "CHARGEMOCK_POSTGRES_MAX_CONNS"
	envKafkaBrokers                = "CHARGEMOCK_KAFKA_BROKERS"
	envKafkaTopic                  = "CHARGEMOCK_KAFKA_TOPIC"
	envKafkaDLQTopic               = "CHARGEMOCK_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval          = "CHARGEMOCK_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "CHARGEMOCK_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "CHARGEMOCK_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "CHARGEMOCK_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "CHARGEMOCK_OUTBOX_MAX_PENDING"
	envIdempotencyCleanupInterval  = "CHARGEMOCK_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "CHARGEMOCK_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envFeePolicy                   = "CHARGEMOCK_FEE_POLICY"
)

// envLookup совпадает по сигнатуре с os.LookupEnv.
type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию,
// а причина возвращается в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	integer(envPostgresMaxConns, &cfg.PostgresMaxConns, positive, "must be > 0")
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")
	str(envFeePolicy, &cfg.FeePolicy)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid value %d: %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid value %s: %s", value, rule)
	}
	return value, nil
}
