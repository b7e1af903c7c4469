package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	opTimeout = 5 * time.Second

	pgUniqueViolation = "23505"
)

// opContext ограничивает одну операцию репозитория по времени. Интерфейсы
// домена не принимают context, поэтому отсчёт идёт от Background.
func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

var errStoreNotInitialized = errors.New("postgres store is not initialized")

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
