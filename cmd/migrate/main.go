package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/chargemock/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "CHARGEMOCK_POSTGRES_DSN"
)

// options — разобранные флаги запуска.
type options struct {
	direction string
	steps     int
	dsn       string
	timeout   time.Duration
}

// migrationRunner — часть postgres.Store, которой пользуется migrate.
type migrationRunner interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
}

func main() {
	opts, err := readOptions(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	if err := migrate(ctx, store, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func readOptions(fs *flag.FlagSet, args []string, getenv func(string) string) (options, error) {
	opts := options{}
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv(envPostgresDSN))
	}

	switch {
	case opts.dsn == "":
		return options{}, fmt.Errorf("%s (or -dsn) is required", envPostgresDSN)
	case opts.direction != "up" && opts.direction != "down" && opts.direction != "status":
		return options{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
	case opts.steps < 0:
		return options{}, errors.New("steps must be >= 0")
	case opts.timeout <= 0:
		return options{}, errors.New("timeout must be > 0")
	}
	return opts, nil
}

// migrate применяет миграции в нужном направлении и печатает итоговое состояние.
func migrate(ctx context.Context, runner migrationRunner, opts options, w io.Writer) error {
	switch opts.direction {
	case "up":
		if err := runner.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if err := runner.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	state, err := runner.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	printState(w, opts.direction, state)
	return nil
}

// printState печатает итог в формате, удобном для grep в CI.
func printState(w io.Writer, direction string, state postgres.MigrationState) {
	label := "migrate " + direction + " ok"
	if direction == "status" {
		label = "migration status"
	}
	_, _ = fmt.Fprintf(w, "%s: version=%d applied=%d pending=%d\n", label, state.Version, state.Applied, len(state.Pending))
	for _, name := range state.Pending {
		_, _ = fmt.Fprintf(w, "  pending %s\n", name)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
