// Package engine реализует песочницу платёжного API: создание и capture
// платежей, покупателей и токенов карт, списки с пагинацией и разворачивание
// ссылок. Все операции синхронны; общее состояние живёт в domain.ObjectStore.
package engine

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/id"
	"github.com/vladislavdragonenkov/chargemock/internal/metrics"
)

// Options задаёт зависимости Engine.
type Options struct {
	FeePolicy domain.FeePolicy
	Outbox    domain.OutboxRepository
	Metrics   *metrics.EngineMetrics
	Logger    *log.Entry
	Clock     func() time.Time
}

// Option настраивает Engine.
type Option func(*Options)

// WithFeePolicy задаёт политику комиссии для balance transaction.
func WithFeePolicy(policy domain.FeePolicy) Option {
	return func(opts *Options) {
		opts.FeePolicy = policy
	}
}

// WithOutbox включает запись событий в outbox. Событие пишется после
// коммита объекта, не в той же транзакции: доставка at-most-once.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(opts *Options) {
		opts.Outbox = repo
	}
}

// WithMetrics задаёт метрики операций.
func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithClock подменяет источник времени (используется в тестах).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// Engine — контекст песочницы. Создаётся явно и передаётся вызывающим;
// Reset очищает состояние между тестами.
type Engine struct {
	store   domain.ObjectStore
	ids     *id.Allocator
	fees    domain.FeePolicy
	outbox  domain.OutboxRepository
	metrics *metrics.EngineMetrics
	logger  *log.Entry
	now     func() time.Time
}

// New создаёт Engine поверх хранилища объектов.
func New(store domain.ObjectStore, options ...Option) *Engine {
	opts := Options{
		FeePolicy: domain.DefaultFee,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "engine")
	}
	if opts.FeePolicy == nil {
		opts.FeePolicy = domain.DefaultFee
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{
		store:   store,
		ids:     id.NewAllocator(),
		fees:    opts.FeePolicy,
		outbox:  opts.Outbox,
		metrics: opts.Metrics,
		logger:  logger,
		now:     clock,
	}
}

// Reset удаляет все объекты песочницы.
func (e *Engine) Reset() {
	e.store.Reset()
	e.logger.Debug("sandbox state reset")
}

// track пишет длительность операции и учитывает отклонённые запросы.
// Ошибки запроса не логируются: их обрабатывает вызывающий.
func (e *Engine) track(operation string, started time.Time, errp *error) {
	e.metrics.ObserveOperation(operation, time.Since(started))

	err := *errp
	if err == nil {
		return
	}
	if ire, ok := domain.AsInvalidRequest(err); ok {
		e.metrics.RecordInvalidRequest(operation, ire.Param, ire.HTTPStatus)
		return
	}
	e.logger.WithError(err).WithField("operation", operation).Warn("operation failed")
}

// reader — общий интерфейс чтения для ObjectStore и StoreTx.
type reader interface {
	Get(objectType domain.ObjectType, id string) (domain.Record, error)
}

// load читает запись и приводит её к ожидаемому Go-типу.
func load[T domain.Object](r reader, objectType domain.ObjectType, objectID string) (T, error) {
	var zero T

	record, err := r.Get(objectType, objectID)
	if err != nil {
		return zero, err
	}
	obj, ok := record.Object.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s %s", domain.ErrObjectTypeMismatch, objectType, objectID)
	}
	return obj, nil
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
