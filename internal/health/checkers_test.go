package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/chargemock/internal/domain"
	"github.com/vladislavdragonenkov/chargemock/internal/storage/memory"
)

func TestObjectStoreChecker(t *testing.T) {
	check := NewObjectStoreChecker(memory.NewObjectStore()).Check()
	require.Equal(t, StatusHealthy, check.Status)
	require.Equal(t, "object_store", check.Name)
	require.Equal(t, "0 charges", check.Message)

	check = NewObjectStoreChecker(nil).Check()
	require.Equal(t, StatusUnhealthy, check.Status)
}

func TestOutboxBacklogChecker(t *testing.T) {
	repo := memory.NewOutboxRepository()
	for i := 0; i < 3; i++ {
		_, err := repo.Enqueue(domain.OutboxMessage{EventType: string(domain.EventTypeChargeSucceeded)})
		require.NoError(t, err)
	}

	t.Run("healthy under limits", func(t *testing.T) {
		check := NewOutboxBacklogChecker(repo, 10, 0).Check()
		require.Equal(t, StatusHealthy, check.Status)
		require.Equal(t, "3 pending events", check.Message)
	})

	t.Run("degraded by pending count", func(t *testing.T) {
		check := NewOutboxBacklogChecker(repo, 2, 0).Check()
		require.Equal(t, StatusDegraded, check.Status)
	})

	t.Run("degraded by age", func(t *testing.T) {
		checker := NewOutboxBacklogChecker(repo, 0, time.Minute)
		checker.now = func() time.Time { return time.Now().Add(time.Hour) }
		require.Equal(t, StatusDegraded, checker.Check().Status)
	})

	t.Run("reports dead-lettered events", func(t *testing.T) {
		pending := repo.AllPending()
		require.NoError(t, repo.MarkFailed(pending[0].ID))

		check := NewOutboxBacklogChecker(repo, 10, 0).Check()
		require.Equal(t, StatusHealthy, check.Status)
		require.Equal(t, "2 pending events, 1 dead-lettered", check.Message)
	})

	t.Run("stats error", func(t *testing.T) {
		check := NewOutboxBacklogChecker(failingOutbox{}, 0, 0).Check()
		require.Equal(t, StatusUnhealthy, check.Status)
		require.Equal(t, "stats unavailable", check.Message)
	})
}

type failingOutbox struct {
	domain.OutboxRepository
}

func (failingOutbox) Stats() (domain.OutboxStats, error) {
	return domain.OutboxStats{}, errors.New("stats unavailable")
}
