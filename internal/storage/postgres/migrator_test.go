package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func migrationFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadMigrationsFromFS_SortsByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0010_charge_events.up.sql":     migrationFile("CREATE TABLE charge_events (id TEXT);"),
		"sql/migrations/0010_charge_events.down.sql":   migrationFile("DROP TABLE IF EXISTS charge_events;"),
		"sql/migrations/0002_idempotency_ttl.up.sql":   migrationFile("ALTER TABLE idempotency_keys ADD COLUMN x INT;"),
		"sql/migrations/0002_idempotency_ttl.down.sql": migrationFile("ALTER TABLE idempotency_keys DROP COLUMN x;"),
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].String() != "0002_idempotency_ttl" || migrations[1].String() != "0010_charge_events" {
		t.Fatalf("unexpected order: %s, %s", migrations[0], migrations[1])
	}
	if !strings.HasPrefix(migrations[1].DownSQL, "DROP TABLE") {
		t.Fatalf("down sql not attached: %+v", migrations[1])
	}
}

func TestLoadMigrationsFromFS_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		fsys fstest.MapFS
		want string
	}{
		"no files": {
			fsys: fstest.MapFS{},
			want: "no migration files",
		},
		"missing down": {
			fsys: fstest.MapFS{"sql/migrations/0001_init.up.sql": migrationFile("SELECT 1;")},
			want: "both up and down",
		},
		"invalid name": {
			fsys: fstest.MapFS{"sql/migrations/not_a_migration.sql": migrationFile("SELECT 1;")},
			want: "invalid migration file name",
		},
		"empty body": {
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   migrationFile("   \n"),
				"sql/migrations/0001_init.down.sql": migrationFile("SELECT 1;"),
			},
			want: "empty",
		},
		"name mismatch": {
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    migrationFile("SELECT 1;"),
				"sql/migrations/0001_other.down.sql": migrationFile("SELECT 1;"),
			},
			want: "name mismatch",
		},
	}

	for name, tc := range cases {
		_, err := loadMigrationsFromFS(tc.fsys)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", name, tc.want, err)
		}
	}
}

func TestLoadMigrationsFromFS_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations are invalid: %v", err)
	}

	want := []struct {
		name  string
		table string
	}{
		{name: "0001_create_idempotency_keys", table: "idempotency_keys"},
		{name: "0002_create_event_outbox", table: "event_outbox"},
	}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d embedded migrations, got %d", len(want), len(migrations))
	}
	for i, w := range want {
		m := migrations[i]
		if m.String() != w.name {
			t.Fatalf("migration %d: expected %s, got %s", i, w.name, m)
		}
		if !strings.Contains(m.UpSQL, w.table) || !strings.Contains(m.DownSQL, w.table) {
			t.Fatalf("%s must create and drop %s", w.name, w.table)
		}
	}
}

func TestPlanUpAndDown(t *testing.T) {
	t.Parallel()

	migrations := []migration{
		{Version: 1, Name: "create_idempotency_keys"},
		{Version: 2, Name: "create_event_outbox"},
		{Version: 3, Name: "charge_events"},
	}

	if plan := planUp(migrations, []int64{1}, 0); len(plan) != 2 || plan[0].Version != 2 || plan[1].Version != 3 {
		t.Fatalf("unexpected up plan: %v", plan)
	}
	if plan := planUp(migrations, nil, 1); len(plan) != 1 || plan[0].Version != 1 {
		t.Fatalf("unexpected limited up plan: %v", plan)
	}

	plan, err := planDown(migrations, []int64{1, 2, 3}, 2)
	if err != nil {
		t.Fatalf("planDown failed: %v", err)
	}
	if len(plan) != 2 || plan[0].Version != 3 || plan[1].Version != 2 {
		t.Fatalf("down plan must go newest first: %v", plan)
	}

	if plan, err := planDown(migrations, nil, 1); err != nil || len(plan) != 0 {
		t.Fatalf("expected empty plan on empty schema, got %v (%v)", plan, err)
	}

	if _, err := planDown(migrations, []int64{1, 99}, 1); err == nil || !strings.Contains(err.Error(), "version 99") {
		t.Fatalf("expected unknown version error, got %v", err)
	}
}
