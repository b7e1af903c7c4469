// Package outbox доставляет события песочницы (charge.succeeded,
// charge.captured, customer.created) из outbox-таблицы в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	// maxRetryDelay ограничивает экспоненциальный рост паузы между попытками.
	maxRetryDelay = 30 * time.Second
)

// Значения label result у chargemock_outbox_publish_attempts_total.
const (
	resultSent       = "sent"
	resultRetryError = "retry_error"
	resultFailed     = "failed"
	resultDLQ        = "dlq"
	resultDLQFailed  = "dlq_failed"
)

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDLQPublisher включает публикацию событий, исчерпавших попытки.
// Без него такие записи только помечаются failed.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(w *Worker) { w.batchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации одного события за проход.
func WithMaxAttempts(maxAttempts int) Option {
	return func(w *Worker) { w.maxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт паузу после первой неудачи, дальше она удваивается.
// Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = delay }
}

// WithClock подменяет часы для возраста backlog и отметки failed_at.
func WithClock(clock func() time.Time) Option {
	return func(w *Worker) { w.now = clock }
}

// Worker забирает pending-записи пачками в порядке создания и публикует их.
// Запись помечается sent только после подтверждения publisher.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry
	metrics   *metrics.OutboxMetrics

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            time.Now,
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.retryBaseDelay < 0 {
		w.retryBaseDelay = 0
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Run публикует backlog сразу и затем раз в pollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну пачку и возвращает число отправленных событий.
// При отмене ctx текущее событие остаётся pending.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.reportBacklog()

	batch, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, event := range batch {
		if ctx.Err() != nil {
			break
		}
		err := w.deliver(ctx, event)
		if err != nil && ctx.Err() != nil {
			break
		}

		entry := w.logger.WithFields(log.Fields{
			"outbox_id":    event.ID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		})
		if err != nil {
			entry.WithError(err).Error("outbox event undeliverable, dead-lettering")
			w.metrics.RecordPublish(resultFailed)
			w.deadLetter(entry, event, err)
			continue
		}

		sent++
		if err := w.repo.MarkSent(event.ID); err != nil {
			// событие уйдёт повторно: consumers дедуплицируют по Envelope.ID
			entry.WithError(err).Warn("failed to mark outbox message sent")
		}
	}
	return sent
}

// deliver делает до maxAttempts попыток с паузой retryBackoff между ними.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = w.publisher.Publish(event); err == nil {
			w.metrics.RecordPublish(resultSent)
			return nil
		}
		w.metrics.RecordPublish(resultRetryError)

		if attempt == w.maxAttempts {
			return fmt.Errorf("%w: %d attempts: %w", domain.ErrOutboxPublish, attempt, err)
		}
		if delay := w.retryBackoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// retryBackoff — пауза после attempt-й неудачи: base, 2*base, 4*base,
// не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 || attempt < 1 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// deadLetterRecord — запись DLQ от outbox worker. Формат читает dlq-replay
// через kafka.ParseDeadLetter.
type deadLetterRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      string          `json:"failed_at"`
}

// deadLetter публикует событие в DLQ, если она настроена, и в любом
// случае переводит запись в failed, чтобы она не блокировала очередь.
func (w *Worker) deadLetter(entry *log.Entry, event domain.OutboxMessage, cause error) {
	if w.dlq != nil {
		if err := w.publishDeadLetter(event, cause); err != nil {
			entry.WithError(err).Warn("failed to publish outbox event to DLQ")
			w.metrics.RecordPublish(resultDLQFailed)
		} else {
			w.metrics.RecordPublish(resultDLQ)
		}
	}

	if err := w.repo.MarkFailed(event.ID); err != nil {
		entry.WithError(err).Warn("failed to mark outbox message failed")
	}
}

func (w *Worker) publishDeadLetter(event domain.OutboxMessage, cause error) error {
	letter, err := json.Marshal(deadLetterRecord{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishError:  cause.Error(),
		FailedAt:      w.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter %s: %w", event.ID, err)
	}

	wrapped := event
	wrapped.Payload = letter
	return w.dlq.Publish(wrapped)
}

func (w *Worker) reportBacklog() {
	if w.metrics == nil {
		return
	}

	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, stats.FailedCount, age)
}
