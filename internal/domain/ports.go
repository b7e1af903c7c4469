package domain

import "time"

// ObjectStore — реестр записей, адресуемых парой (тип, ID).
// Записи одного типа возвращаются в порядке вставки.
type ObjectStore interface {
	Get(objectType ObjectType, id string) (Record, error)
	List(objectType ObjectType) ([]Record, error)
	Count(objectType ObjectType) (int, error)
	// Tx выполняет fn под эксклюзивной блокировкой. Изменения применяются
	// атомарно только если fn вернула nil; иначе они отбрасываются целиком.
	Tx(fn func(tx StoreTx) error) error
	// Reset удаляет все записи (изоляция между тестами).
	Reset()
}

// StoreTx — операции внутри транзакции ObjectStore.
type StoreTx interface {
	Get(objectType ObjectType, id string) (Record, error)
	Insert(obj Object) error
	Update(obj Object) error
}

// OutboxPublisher публикует события из outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	// Claim занимает ключ. Если живая запись уже есть, она возвращается
	// вместе с ошибкой из IdempotencyRecord.Conflict. Просроченную запись
	// можно занять заново.
	Claim(claim IdempotencyClaim) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	Complete(key string, outcome IdempotencyOutcome) error
	// Release снимает незавершённый захват, чтобы повтор выполнился заново.
	// Завершённую запись не трогает.
	Release(key string) error
	// Purge удаляет все записи.
	Purge() error
	// DeleteExpired удаляет не больше limit записей, начиная с самых старых.
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStatus — состояние события в outbox.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	// OutboxStatusFailed ставится после ухода события в DLQ.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	FailedCount     int
	OldestPendingAt time.Time
}
