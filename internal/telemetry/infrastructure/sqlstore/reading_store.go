package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"sync"
	"time"

	"proofing-monitor/internal/platform/sqldb"
	telemetry "proofing-monitor/internal/telemetry/domain"
)

const defaultPageSize = 256

// ReadingStore persists readings in iot_data.
type ReadingStore struct {
	db       sqldb.DBTX
	dialect  sqldb.Dialect
	pageSize int

	mu     sync.Mutex
	lastTS map[string]time.Time
}

// Option configures the store.
type Option func(*ReadingStore)

// WithPageSize sets how many rows Series fetches per query.
func WithPageSize(n int) Option {
	return func(s *ReadingStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewReadingStore constructs a store.
func NewReadingStore(db sqldb.DBTX, dialect sqldb.Dialect, opts ...Option) *ReadingStore {
	s := &ReadingStore{
		db:       db,
		dialect:  dialect,
		pageSize: defaultPageSize,
		lastTS:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append inserts r and assigns its id.
func (s *ReadingStore) Append(ctx context.Context, r *telemetry.Reading) error {
	if s == nil || s.db == nil {
		return errors.New("reading store: nil db")
	}
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.lastTS[r.Metric]
	if !ok {
		latest, err := s.Latest(ctx, r.Metric)
		if err != nil {
			return err
		}
		if latest != nil {
			prev = latest.TS
		}
	}
	r.TS = telemetry.NormalizeTS(r.TS, prev)

	device := r.Device
	if device == "" {
		device = r.Metric
	}
	query := s.dialect.Rebind(`
INSERT INTO iot_data (ts, device_name, metric, value, value_text, units)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`)
	if err := s.db.QueryRowContext(ctx, query,
		r.TS.Format(telemetry.TimeLayout),
		device,
		r.Metric,
		nullFloat(r.ValueNumeric),
		nullString(r.ValueText),
		nullText(r.Units),
	).Scan(&r.ID); err != nil {
		return err
	}
	s.lastTS[r.Metric] = r.TS
	return nil
}

// Latest returns the newest reading for metric, or nil.
func (s *ReadingStore) Latest(ctx context.Context, metric string) (*telemetry.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("reading store: nil db")
	}
	if metric == "" {
		return nil, telemetry.ErrEmptyMetric
	}
	query := s.dialect.Rebind(`
SELECT id, ts, device_name, metric, value, value_text, units
FROM iot_data
WHERE metric = ?
ORDER BY id DESC
LIMIT 1`)
	reading, err := scanReading(s.db.QueryRowContext(ctx, query, metric))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &reading, nil
}

// Series yields readings for metric in insertion order, one page per query.
func (s *ReadingStore) Series(ctx context.Context, metric string) iter.Seq2[telemetry.Reading, error] {
	return func(yield func(telemetry.Reading, error) bool) {
		if s == nil || s.db == nil {
			yield(telemetry.Reading{}, errors.New("reading store: nil db"))
			return
		}
		if metric == "" {
			yield(telemetry.Reading{}, telemetry.ErrEmptyMetric)
			return
		}
		query := s.dialect.Rebind(`
SELECT id, ts, device_name, metric, value, value_text, units
FROM iot_data
WHERE metric = ? AND id > ?
ORDER BY id ASC
LIMIT ?`)
		var after int64
		for {
			page, err := s.page(ctx, query, metric, after)
			if err != nil {
				yield(telemetry.Reading{}, err)
				return
			}
			for _, r := range page {
				if !yield(r, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

func (s *ReadingStore) page(ctx context.Context, query, metric string, after int64) ([]telemetry.Reading, error) {
	rows, err := s.db.QueryContext(ctx, query, metric, after, s.pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]telemetry.Reading, 0, s.pageSize)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(row scanner) (telemetry.Reading, error) {
	var (
		r     telemetry.Reading
		ts    string
		value sql.NullFloat64
		text  sql.NullString
		units sql.NullString
	)
	if err := row.Scan(&r.ID, &ts, &r.Device, &r.Metric, &value, &text, &units); err != nil {
		return telemetry.Reading{}, err
	}
	parsed, err := time.ParseInLocation(telemetry.TimeLayout, ts, time.UTC)
	if err != nil {
		return telemetry.Reading{}, err
	}
	r.TS = parsed
	if value.Valid {
		v := value.Float64
		r.ValueNumeric = &v
	}
	if text.Valid {
		t := text.String
		r.ValueText = &t
	}
	r.Units = units.String
	return r, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullText(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
