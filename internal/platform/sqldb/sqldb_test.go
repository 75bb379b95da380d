package sqldb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c = ?"
	if got := DialectFor(DriverSQLite).Rebind(q); got != q {
		t.Fatalf("sqlite rebind changed query: %s", got)
	}
	want := "SELECT a FROM t WHERE b = $1 AND c = $2"
	if got := DialectFor(DriverPostgres).Rebind(q); got != want {
		t.Fatalf("postgres rebind: got %s want %s", got, want)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Open(context.Background(), DriverSQLite, ""); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestMigrateSQLiteIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "proofing.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db, DialectFor(DriverSQLite)); err != nil {
			t.Fatalf("migrate #%d: %v", i, err)
		}
	}
	for _, table := range []string{"iot_devices", "iot_data", "iot_alerts"} {
		var name string
		if err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestMigratePostgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := Migrate(ctx, db, DialectFor(DriverPostgres)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}
