package health

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
)

// ObjectStoreChecker проверяет, что хранилище песочницы отвечает на чтение.
type ObjectStoreChecker struct {
	store domain.ObjectStore
}

// NewObjectStoreChecker создаёт проверку ObjectStore.
func NewObjectStoreChecker(store domain.ObjectStore) *ObjectStoreChecker {
	return &ObjectStoreChecker{store: store}
}

// Check считает платежи; ошибка чтения делает компонент unhealthy.
func (c *ObjectStoreChecker) Check() Check {
	start := time.Now()
	check := Check{Name: "object_store", Status: StatusHealthy}

	if c.store == nil {
		check.Status = StatusUnhealthy
		check.Message = "object store is not configured"
	} else if charges, err := c.store.Count(domain.ObjectTypeCharge); err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	} else {
		check.Message = fmt.Sprintf("%d charges", charges)
	}

	check.DurationMs = time.Since(start).Milliseconds()
	return check
}

// OutboxBacklogChecker помечает сервис degraded, если outbox не успевает
// публиковать события.
type OutboxBacklogChecker struct {
	repo       domain.OutboxRepository
	maxPending int
	maxAge     time.Duration
	now        func() time.Time
}

// NewOutboxBacklogChecker создаёт проверку backlog. Нулевые пороги отключают
// соответствующее условие.
func NewOutboxBacklogChecker(repo domain.OutboxRepository, maxPending int, maxAge time.Duration) *OutboxBacklogChecker {
	return &OutboxBacklogChecker{
		repo:       repo,
		maxPending: maxPending,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Check возвращает degraded при превышении порогов и unhealthy при ошибке Stats.
func (c *OutboxBacklogChecker) Check() Check {
	start := time.Now()
	check := Check{Name: "outbox", Status: StatusHealthy}

	stats, err := c.repo.Stats()
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
		check.DurationMs = time.Since(start).Milliseconds()
		return check
	}

	var age time.Duration
	if !stats.OldestPendingAt.IsZero() {
		age = c.now().Sub(stats.OldestPendingAt)
	}

	switch {
	case c.maxPending > 0 && stats.PendingCount > c.maxPending:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d pending events exceed limit %d", stats.PendingCount, c.maxPending)
	case c.maxAge > 0 && age > c.maxAge:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("oldest pending event is %s old", age.Round(time.Second))
	default:
		check.Message = fmt.Sprintf("%d pending events", stats.PendingCount)
	}
	if stats.FailedCount > 0 {
		check.Message += fmt.Sprintf(", %d dead-lettered", stats.FailedCount)
	}

	check.DurationMs = time.Since(start).Milliseconds()
	return check
}
