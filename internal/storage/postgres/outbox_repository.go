package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

const defaultPullLimit = 100

type outboxRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOutboxRepository создаёт outbox в таблице event_outbox.
// События выдаются в порядке seq, то есть в порядке Enqueue.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue сохраняет событие в статусе pending. Payload хранится как JSONB,
// поэтому невалидный JSON отклоняется до обращения к базе.
func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if len(msg.Payload) == 0 {
		msg.Payload = []byte("{}")
	}
	if !json.Valid(msg.Payload) {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s: payload is not valid JSON", msg.ID)
	}

	ctx, cancel := opContext()
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO event_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		string(domain.OutboxStatusPending), r.now(),
	); err != nil {
		if isUniqueViolation(err) {
			return domain.OutboxMessage{}, fmt.Errorf("%w: outbox message %s", domain.ErrObjectAlreadyExists, msg.ID)
		}
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message %s: %w", msg.ID, err)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultPullLimit
	}

	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM event_outbox
		WHERE status = $1
		ORDER BY seq
		LIMIT $2
	`, string(domain.OutboxStatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer rows.Close()

	var pending []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		pending = append(pending, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return pending, nil
}

// Stats считает pending и failed одним проходом по таблице.
func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := opContext()
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			MIN(created_at) FILTER (WHERE status = $1)
		FROM event_outbox
	`, string(domain.OutboxStatusPending), string(domain.OutboxStatusFailed),
	).Scan(&stats.PendingCount, &stats.FailedCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error {
	return r.transition(id, domain.OutboxStatusSent)
}

func (r *outboxRepository) MarkFailed(id string) error {
	return r.transition(id, domain.OutboxStatusFailed)
}

// transition переводит событие в конечный статус и считает попытку.
func (r *outboxRepository) transition(id string, status domain.OutboxStatus) error {
	ctx, cancel := opContext()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1
	`, id, string(status), r.now())
	if err != nil {
		return fmt.Errorf("mark outbox message %s as %s: %w", id, status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: outbox message %s not found", domain.ErrOutboxPublish, id)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
