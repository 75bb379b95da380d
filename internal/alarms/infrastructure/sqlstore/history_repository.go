package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarms "proofing-monitor/internal/alarms/domain"
	"proofing-monitor/internal/platform/sqldb"
)

const historyTimeLayout = "2006-01-02 15:04:05"

// HistoryRepository stores alert emissions in iot_alerts.
type HistoryRepository struct {
	db      sqldb.DBTX
	dialect sqldb.Dialect
}

// NewHistoryRepository constructs a repository.
func NewHistoryRepository(db sqldb.DBTX, dialect sqldb.Dialect) *HistoryRepository {
	return &HistoryRepository{db: db, dialect: dialect}
}

// Append inserts a record and assigns its id.
func (r *HistoryRepository) Append(ctx context.Context, record *alarms.HistoryRecord) error {
	if r == nil || r.db == nil {
		return errors.New("alert history repo: nil db")
	}
	if record == nil {
		return errors.New("alert history repo: nil record")
	}
	if record.TS.IsZero() {
		record.TS = time.Now()
	}
	record.TS = record.TS.UTC().Truncate(time.Second)
	query := r.dialect.Rebind(`
INSERT INTO iot_alerts (ts, level, message)
VALUES (?, ?, ?)
RETURNING id`)
	return r.db.QueryRowContext(ctx, query, record.TS.Format(historyTimeLayout), record.Level, record.Message).Scan(&record.ID)
}

// ListRecent returns up to limit records, newest first.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]alarms.HistoryRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert history repo: nil db")
	}
	if limit <= 0 {
		return nil, errors.New("alert history repo: limit must be positive")
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`
SELECT id, ts, level, message
FROM iot_alerts
ORDER BY id DESC
LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.HistoryRecord
	for rows.Next() {
		var (
			record  alarms.HistoryRecord
			ts      string
			level   sql.NullString
			message sql.NullString
		)
		if err := rows.Scan(&record.ID, &ts, &level, &message); err != nil {
			return nil, err
		}
		parsed, err := time.ParseInLocation(historyTimeLayout, ts, time.UTC)
		if err != nil {
			return nil, err
		}
		record.TS = parsed
		record.Level = level.String
		record.Message = message.String
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
