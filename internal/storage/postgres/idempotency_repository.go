package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

const idempotencyColumns = `key, method, request_hash, status, response, response_code, expires_at, created_at, updated_at`

type idempotencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository хранит ключи идемпотентности в таблице
// idempotency_keys. Просроченный ключ не виден через Get и может быть
// занят заново до того, как его удалит cleanup-воркер.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Claim вставляет запись или перезаписывает просроченную. RETURNING
// не отдаёт строку, если живой ключ уже занят: тогда конфликт
// разбирается по сохранённой записи.
func (r *idempotencyRepository) Claim(claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	now := r.now()
	claim, err := claim.Normalize(now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	record := domain.NewIdempotencyRecord(claim, now)

	ctx, cancel := opContext()
	defer cancel()

	var claimedAt time.Time
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO idempotency_keys (`+idempotencyColumns+`)
		VALUES ($1, $2, $3, $4, NULL, 0, $5, $6, $6)
		ON CONFLICT (key) DO UPDATE
		SET method = EXCLUDED.method,
		    request_hash = EXCLUDED.request_hash,
		    status = EXCLUDED.status,
		    response = NULL,
		    response_code = 0,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at,
		    updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.expires_at <= EXCLUDED.created_at
		RETURNING created_at
	`, record.Key, record.Method, record.RequestHash, string(record.Status), record.ExpiresAt, now,
	).Scan(&claimedAt)
	switch {
	case err == nil:
		return record, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, fmt.Errorf("claim idempotency key %s: %w", record.Key, err)
	}

	held, err := r.load(record.Key)
	if err != nil {
		// запись успели удалить между INSERT и SELECT
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
		}
		return domain.IdempotencyRecord{}, err
	}
	return held, held.Conflict(claim)
}

func (r *idempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	record, err := r.load(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if record.Expired(r.now()) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

// Complete записывает итог; срок жизни ключа не проверяется.
func (r *idempotencyRepository) Complete(key string, outcome domain.IdempotencyOutcome) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if !outcome.Terminal() {
		return domain.ErrIdempotencyOutcomeInvalid
	}

	ctx, cancel := opContext()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = $2, response = $3, response_code = $4, updated_at = $5
		WHERE key = $1
	`, key, string(outcome.Status), outcome.Response, outcome.Code, r.now())
	if err != nil {
		return fmt.Errorf("complete idempotency key %s: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// Release удаляет запись, пока она в статусе processing.
func (r *idempotencyRepository) Release(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := opContext()
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE key = $1 AND status = $2`,
		key, string(domain.IdempotencyStatusProcessing))
	if err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func (r *idempotencyRepository) Purge() error {
	ctx, cancel := opContext()
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys`); err != nil {
		return fmt.Errorf("purge idempotency keys: %w", err)
	}
	return nil
}

// DeleteExpired удаляет записи с expires_at <= before, самые старые первыми.
func (r *idempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := opContext()
	defer cancel()

	// LIMIT ALL при limit <= 0
	var batch sql.NullInt64
	if limit > 0 {
		batch = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys
		WHERE key IN (
			SELECT key FROM idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at, key
			LIMIT $2
		)
	`, before, batch)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}
	return int(affected), nil
}

// load читает запись без учёта срока жизни.
func (r *idempotencyRepository) load(key string) (domain.IdempotencyRecord, error) {
	ctx, cancel := opContext()
	defer cancel()

	var (
		record domain.IdempotencyRecord
		status string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`, key,
	).Scan(
		&record.Key,
		&record.Method,
		&record.RequestHash,
		&status,
		&record.Response,
		&record.Code,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("load idempotency key %s: %w", key, err)
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("idempotency key %s has unknown status %q", key, status)
	}
	return record, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
