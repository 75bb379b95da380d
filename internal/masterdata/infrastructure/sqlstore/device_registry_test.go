package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	masterdata "proofing-monitor/internal/masterdata/domain"
	"proofing-monitor/internal/platform/sqldb"
)

func newRegistry(t *testing.T) *DeviceRegistry {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.DriverSQLite, filepath.Join(t.TempDir(), "devices.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	dialect := sqldb.DialectFor(sqldb.DriverSQLite)
	if err := sqldb.Migrate(ctx, db, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewDeviceRegistry(db, dialect)
}

func TestDeviceRegistryUpsertByName(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	device := &masterdata.Device{Name: "alarm", Type: masterdata.TypeAlarm, Temperature: "32", PendingChange: true}
	if err := reg.Upsert(ctx, device); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	firstID := device.ID
	if firstID == 0 {
		t.Fatalf("expected id")
	}

	update := &masterdata.Device{Name: "alarm", Type: masterdata.TypeAlarm, Temperature: "30"}
	if err := reg.Upsert(ctx, update); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if update.ID != firstID {
		t.Fatalf("expected same id, got %d and %d", firstID, update.ID)
	}

	loaded, err := reg.Get(ctx, "alarm")
	if err != nil || loaded == nil {
		t.Fatalf("get: %+v %v", loaded, err)
	}
	if loaded.Temperature != "30" || loaded.PendingChange {
		t.Fatalf("unexpected device %+v", loaded)
	}
	if missing, err := reg.Get(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("expected nil for missing device")
	}
}

func TestDeviceRegistryPendingAndMarkProcessed(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()
	for _, d := range []masterdata.Device{
		{Name: "alarm", Type: masterdata.TypeAlarm, PendingChange: true},
		{Name: "ElecMeter", Type: "meter"},
		{Name: "DHT-1", Type: "dht", PendingChange: true},
	} {
		device := d
		if err := reg.Upsert(ctx, &device); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	pending, err := reg.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].Name != "alarm" || pending[1].Name != "DHT-1" {
		t.Fatalf("unexpected pending %+v", pending)
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := reg.MarkProcessed(ctx, pending[0].ID, at); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	pending, _ = reg.ListPending(ctx)
	if len(pending) != 1 || pending[0].Name != "DHT-1" {
		t.Fatalf("unexpected pending after mark %+v", pending)
	}
	alarm, _ := reg.Get(ctx, "alarm")
	if !alarm.LastUpdated.Equal(at) {
		t.Fatalf("expected last_updated %v, got %v", at, alarm.LastUpdated)
	}

	if err := reg.MarkProcessed(ctx, 999, at); !errors.Is(err, masterdata.ErrDeviceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	all, err := reg.List(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("list: %d %v", len(all), err)
	}
}

func TestDeviceRegistryRejectsEmptyName(t *testing.T) {
	reg := newRegistry(t)
	if err := reg.Upsert(context.Background(), &masterdata.Device{}); err == nil {
		t.Fatalf("expected error")
	}
}
