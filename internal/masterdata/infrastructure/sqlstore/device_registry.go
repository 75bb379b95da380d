package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	masterdata "proofing-monitor/internal/masterdata/domain"
	"proofing-monitor/internal/platform/sqldb"
)

const deviceColumns = `id, name, dev_type, status, units, update_interval, placed, enabled,
	state, mode, fan, temperature, dev_pub_topic, dev_sub_topic, special, last_updated`

// DeviceRegistry stores devices in iot_devices.
type DeviceRegistry struct {
	db      sqldb.DBTX
	dialect sqldb.Dialect
	now     func() time.Time
}

// DeviceOption configures the registry.
type DeviceOption func(*DeviceRegistry)

// WithClock overrides the clock used for last_updated on upsert.
func WithClock(now func() time.Time) DeviceOption {
	return func(r *DeviceRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewDeviceRegistry constructs a registry.
func NewDeviceRegistry(db sqldb.DBTX, dialect sqldb.Dialect, opts ...DeviceOption) *DeviceRegistry {
	r := &DeviceRegistry{db: db, dialect: dialect, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert inserts or updates a device by name.
func (r *DeviceRegistry) Upsert(ctx context.Context, device *masterdata.Device) error {
	if r == nil || r.db == nil {
		return errors.New("device registry: nil db")
	}
	if device == nil {
		return errors.New("device registry: nil device")
	}
	if err := device.Validate(); err != nil {
		return err
	}
	if device.LastUpdated.IsZero() {
		device.LastUpdated = r.now()
	}
	device.LastUpdated = device.LastUpdated.UTC().Truncate(time.Second)

	query := r.dialect.Rebind(`
INSERT INTO iot_devices (
	name, dev_type, status, units, update_interval, placed, enabled,
	state, mode, fan, temperature, dev_pub_topic, dev_sub_topic, special, last_updated
) VALUES (
	?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
)
ON CONFLICT (name)
DO UPDATE SET
	dev_type = excluded.dev_type,
	status = excluded.status,
	units = excluded.units,
	update_interval = excluded.update_interval,
	placed = excluded.placed,
	enabled = excluded.enabled,
	state = excluded.state,
	mode = excluded.mode,
	fan = excluded.fan,
	temperature = excluded.temperature,
	dev_pub_topic = excluded.dev_pub_topic,
	dev_sub_topic = excluded.dev_sub_topic,
	special = excluded.special,
	last_updated = excluded.last_updated
RETURNING id`)

	return r.db.QueryRowContext(
		ctx,
		query,
		device.Name,
		device.Type,
		device.Status,
		device.Units,
		device.UpdateInterval,
		device.Placed,
		device.Enabled,
		device.State,
		device.Mode,
		device.Fan,
		device.Temperature,
		device.PubTopic,
		device.SubTopic,
		specialValue(device.PendingChange),
		device.LastUpdated.Format(masterdataTimeLayout),
	).Scan(&device.ID)
}

// Get loads a device by name.
func (r *DeviceRegistry) Get(ctx context.Context, name string) (*masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device registry: nil db")
	}
	if name == "" {
		return nil, errors.New("device registry: empty name")
	}
	query := r.dialect.Rebind(`SELECT ` + deviceColumns + `
FROM iot_devices
WHERE name = ?
LIMIT 1`)
	device, err := scanDevice(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

// List loads all devices ordered by id.
func (r *DeviceRegistry) List(ctx context.Context) ([]masterdata.Device, error) {
	return r.list(ctx, `SELECT `+deviceColumns+`
FROM iot_devices
ORDER BY id ASC`)
}

// ListPending loads devices flagged with a pending change.
func (r *DeviceRegistry) ListPending(ctx context.Context) ([]masterdata.Device, error) {
	return r.list(ctx, `SELECT `+deviceColumns+`
FROM iot_devices
WHERE special = ?
ORDER BY id ASC`, masterdata.PendingMarker)
}

// MarkProcessed clears the pending flag and refreshes last_updated.
func (r *DeviceRegistry) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("device registry: nil db")
	}
	query := r.dialect.Rebind(`
UPDATE iot_devices
SET special = '', last_updated = ?
WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, at.UTC().Format(masterdataTimeLayout), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return masterdata.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRegistry) list(ctx context.Context, query string, args ...any) ([]masterdata.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device registry: nil db")
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const masterdataTimeLayout = "2006-01-02 15:04:05"

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(row scanner) (masterdata.Device, error) {
	var (
		d                                                masterdata.Device
		typ, status, units, placed, enabled              sql.NullString
		state, mode, fan, temperature, pub, sub, special sql.NullString
		lastUpdated                                      sql.NullString
		interval                                         sql.NullInt64
	)
	if err := row.Scan(
		&d.ID,
		&d.Name,
		&typ,
		&status,
		&units,
		&interval,
		&placed,
		&enabled,
		&state,
		&mode,
		&fan,
		&temperature,
		&pub,
		&sub,
		&special,
		&lastUpdated,
	); err != nil {
		return masterdata.Device{}, err
	}
	d.Type = typ.String
	d.Status = status.String
	d.Units = units.String
	d.UpdateInterval = int(interval.Int64)
	d.Placed = placed.String
	d.Enabled = enabled.String
	d.State = state.String
	d.Mode = mode.String
	d.Fan = fan.String
	d.Temperature = temperature.String
	d.PubTopic = pub.String
	d.SubTopic = sub.String
	d.PendingChange = special.String == masterdata.PendingMarker
	if lastUpdated.Valid && lastUpdated.String != "" {
		if ts, err := time.ParseInLocation(masterdataTimeLayout, lastUpdated.String, time.UTC); err == nil {
			d.LastUpdated = ts
		}
	}
	return d, nil
}

func specialValue(pending bool) string {
	if pending {
		return masterdata.PendingMarker
	}
	return ""
}
