package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	alarms "proofing-monitor/internal/alarms/domain"
	"proofing-monitor/internal/platform/sqldb"
)

func TestHistoryRepositoryAppendAndList(t *testing.T) {
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.DriverSQLite, filepath.Join(t.TempDir(), "alerts.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	dialect := sqldb.DialectFor(sqldb.DriverSQLite)
	if err := sqldb.Migrate(ctx, db, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := NewHistoryRepository(db, dialect)

	at := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	messages := []string{"Dough moisture out of range: 80% (target 60.0–75.0%)", "Dough moisture back in range", "Oven ready."}
	for i, msg := range messages {
		record := &alarms.HistoryRecord{TS: at.Add(time.Duration(i) * time.Second), Level: "alert", Message: msg}
		if err := repo.Append(ctx, record); err != nil {
			t.Fatalf("append: %v", err)
		}
		if record.ID == 0 {
			t.Fatalf("expected id")
		}
	}

	recent, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recent) != 2 || recent[0].Message != "Oven ready." || recent[1].Message != messages[1] {
		t.Fatalf("unexpected records %+v", recent)
	}
	if !recent[0].TS.Equal(at.Add(2 * time.Second)) {
		t.Fatalf("unexpected ts %v", recent[0].TS)
	}
	if _, err := repo.ListRecent(ctx, 0); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
