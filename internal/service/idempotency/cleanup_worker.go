// Package idempotency удаляет просроченные ключи идемпотентности gRPC API.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	// defaultMaxBatches ограничивает один проход, чтобы поток новых
	// просроченных ключей не держал воркер в цикле бесконечно.
	defaultMaxBatches = 100
)

// KeyPurger — часть репозитория ключей, которая нужна воркеру.
type KeyPurger interface {
	DeleteExpired(before time.Time, limit int) (int, error)
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) { w.logger = logger }
}

func WithMetrics(m *metrics.CleanupMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithClock подменяет часы, от которых отсчитывается истечение ключей.
func WithClock(clock func() time.Time) CleanupOption {
	return func(w *CleanupWorker) { w.now = clock }
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) { w.interval = interval }
}

// WithBatchSize задаёт число ключей, удаляемых одним запросом.
func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) { w.batchSize = batchSize }
}

// WithMaxBatches ограничивает число запросов за один проход.
func WithMaxBatches(n int) CleanupOption {
	return func(w *CleanupWorker) { w.maxBatches = n }
}

// CleanupWorker периодически удаляет ключи, чей срок жизни истёк.
// До удаления такие ключи уже невидимы для API, воркер только
// освобождает место в хранилище.
type CleanupWorker struct {
	repo       KeyPurger
	logger     *log.Entry
	metrics    *metrics.CleanupMetrics
	interval   time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
}

func NewCleanupWorker(repo KeyPurger, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:       repo,
		interval:   defaultCleanupInterval,
		batchSize:  defaultCleanupBatchSize,
		maxBatches: defaultMaxBatches,
		now:        time.Now,
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "idempotency-cleanup-worker")
	}
	if w.interval <= 0 {
		w.interval = defaultCleanupInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultCleanupBatchSize
	}
	if w.maxBatches <= 0 {
		w.maxBatches = defaultMaxBatches
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Run делает проход сразу и затем раз в interval, пока жив ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now().UTC())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		w.metrics.RecordRun(err, deleted)
		w.logger.WithError(err).WithField("deleted", deleted).Warn("idempotency cleanup run failed")
		return
	}

	w.metrics.RecordRun(nil, deleted)
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// DeleteExpired удаляет ключи с ExpiresAt <= before порциями batchSize,
// пока порция заполнена целиком, но не больше maxBatches раз.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now().UTC()
	}

	total := 0
	for batch := 0; batch < w.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(before, w.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		w.metrics.AddDeleted(deleted)

		if deleted < w.batchSize {
			return total, nil
		}
	}

	w.logger.WithFields(log.Fields{
		"deleted":     total,
		"max_batches": w.maxBatches,
	}).Info("idempotency cleanup hit batch limit, continuing next run")
	return total, nil
}
