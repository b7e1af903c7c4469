package domain

import (
	"strings"
	"time"
)

// DefaultIdempotencyTTL — срок жизни ключа, если заявка его не задала.
// Совпадает с окном, в котором реальный API помнит ключи.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	IdempotencyStatusFailed     IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyClaim — попытка занять ключ под конкретный RPC и тело запроса.
type IdempotencyClaim struct {
	Key         string
	Method      string
	RequestHash string
	ExpiresAt   time.Time
}

// Normalize обрезает пробелы и подставляет срок жизни по умолчанию.
// Method может быть пустым: тогда ключ не привязан к RPC.
func (c IdempotencyClaim) Normalize(now time.Time) (IdempotencyClaim, error) {
	c.Key = strings.TrimSpace(c.Key)
	c.Method = strings.TrimSpace(c.Method)
	c.RequestHash = strings.TrimSpace(c.RequestHash)

	if c.Key == "" {
		return c, ErrIdempotencyKeyRequired
	}
	if c.RequestHash == "" {
		return c, ErrIdempotencyRequestHashRequired
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = now.Add(DefaultIdempotencyTTL)
	}
	return c, nil
}

// IdempotencyOutcome — итог запроса, который вернётся при повторе.
// Code хранит числовой gRPC-код ответа.
type IdempotencyOutcome struct {
	Status   IdempotencyStatus
	Response []byte
	Code     int
}

// Terminal сообщает, что итог можно записать в репозиторий.
func (o IdempotencyOutcome) Terminal() bool {
	return o.Status == IdempotencyStatusDone || o.Status == IdempotencyStatusFailed
}

// IdempotencyRecord хранит состояние обработки запроса с idempotency-key.
type IdempotencyRecord struct {
	Key         string
	Method      string
	RequestHash string
	Status      IdempotencyStatus
	Response    []byte
	Code        int
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewIdempotencyRecord открывает запись в статусе processing.
func NewIdempotencyRecord(claim IdempotencyClaim, now time.Time) IdempotencyRecord {
	return IdempotencyRecord{
		Key:         claim.Key,
		Method:      claim.Method,
		RequestHash: claim.RequestHash,
		Status:      IdempotencyStatusProcessing,
		ExpiresAt:   claim.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Expired сообщает, истёк ли срок хранения записи к моменту now.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !r.ExpiresAt.After(now)
}

// Terminal сообщает, что обработка завершена и ответ можно переиспользовать.
func (r IdempotencyRecord) Terminal() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Conflict объясняет, почему живую запись нельзя занять заявкой claim.
// Чужой метод проверяется раньше тела запроса.
func (r IdempotencyRecord) Conflict(claim IdempotencyClaim) error {
	switch {
	case r.Method != claim.Method:
		return ErrIdempotencyMethodMismatch
	case r.RequestHash != claim.RequestHash:
		return ErrIdempotencyHashMismatch
	default:
		return ErrIdempotencyKeyAlreadyExists
	}
}

// Apply записывает итог в копию записи.
func (r IdempotencyRecord) Apply(outcome IdempotencyOutcome, now time.Time) IdempotencyRecord {
	r.Status = outcome.Status
	r.Response = append([]byte(nil), outcome.Response...)
	r.Code = outcome.Code
	r.UpdatedAt = now
	return r
}
