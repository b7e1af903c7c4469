package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// IdempotencyRepository держит ключи идемпотентности в памяти процесса.
// Записи с истёкшим сроком невидимы для Get и могут быть заняты заново,
// физически их удаляет cleanup-воркер через DeleteExpired.
type IdempotencyRepository struct {
	mu   sync.RWMutex
	keys map[string]domain.IdempotencyRecord
	now  func() time.Time
}

// NewIdempotencyRepository создаёт пустой репозиторий.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return newIdempotencyRepository(func() time.Time { return time.Now().UTC() })
}

func newIdempotencyRepository(clock func() time.Time) *IdempotencyRepository {
	return &IdempotencyRepository{
		keys: make(map[string]domain.IdempotencyRecord),
		now:  clock,
	}
}

// Claim занимает ключ под метод и хэш запроса.
func (r *IdempotencyRepository) Claim(claim domain.IdempotencyClaim) (domain.IdempotencyRecord, error) {
	now := r.now()
	claim, err := claim.Normalize(now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.keys[claim.Key]; ok && !held.Expired(now) {
		return copyRecord(held), held.Conflict(claim)
	}

	record := domain.NewIdempotencyRecord(claim, now)
	r.keys[claim.Key] = record
	return copyRecord(record), nil
}

func (r *IdempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.keys[key]
	if !ok || record.Expired(r.now()) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

// Complete фиксирует итог запроса. Итог пишется и в просроченную запись:
// запрос мог выполняться дольше срока жизни ключа.
func (r *IdempotencyRepository) Complete(key string, outcome domain.IdempotencyOutcome) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if !outcome.Terminal() {
		return domain.ErrIdempotencyOutcomeInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.keys[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	r.keys[key] = record.Apply(outcome, r.now())
	return nil
}

// Release удаляет запись в статусе processing.
func (r *IdempotencyRepository) Release(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.keys[key]
	if !ok || record.Status != domain.IdempotencyStatusProcessing {
		return domain.ErrIdempotencyKeyNotFound
	}
	delete(r.keys, key)
	return nil
}

func (r *IdempotencyRepository) Purge() error {
	r.mu.Lock()
	r.keys = make(map[string]domain.IdempotencyRecord)
	r.mu.Unlock()
	return nil
}

// DeleteExpired удаляет записи с ExpiresAt <= before в порядке истечения.
// limit <= 0 снимает ограничение.
func (r *IdempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := make([]domain.IdempotencyRecord, 0)
	for _, record := range r.keys {
		if record.Expired(before) {
			expired = append(expired, record)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].ExpiresAt.Equal(expired[j].ExpiresAt) {
			return expired[i].Key < expired[j].Key
		}
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	for _, record := range expired {
		delete(r.keys, record.Key)
	}
	return len(expired), nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.Response = append([]byte(nil), src.Response...)
	return dst
}

var _ domain.IdempotencyRepository = (*IdempotencyRepository)(nil)
