package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pingTimeout = 5 * time.Second

	defaultMaxOpenConns = 10
)

// Option настраивает пул подключений Store.
type Option func(*sql.DB)

// WithMaxOpenConns ограничивает пул. Простаивающих соединений держится
// не больше половины, но хотя бы одно.
func WithMaxOpenConns(n int) Option {
	return func(db *sql.DB) {
		if n <= 0 {
			return
		}
		db.SetMaxOpenConns(n)
		db.SetMaxIdleConns(max(1, n/2))
	}
}

// WithConnMaxLifetime пересоздаёт соединения не реже d, например за pgbouncer.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(db *sql.DB) {
		if d > 0 {
			db.SetConnMaxLifetime(d)
		}
	}
}

// Store — пул подключений к PostgreSQL, где песочница держит
// idempotency-ключи и outbox событий. Объекты API живут в памяти.
type Store struct {
	db *sql.DB
}

// Open подключается через драйвер pgx и сразу проверяет базу.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	WithMaxOpenConns(defaultMaxOpenConns)(db)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	for _, option := range options {
		option(db)
	}

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт пул репозиториям пакета и тестам.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close закрывает пул; nil Store закрывается без ошибки.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
