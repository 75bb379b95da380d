package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by repositories.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect rewrites portable queries for a driver.
type Dialect string

// DialectFor returns the dialect of driver.
func DialectFor(driver string) Dialect {
	return Dialect(driver)
}

// Postgres reports whether the dialect uses numbered placeholders.
func (d Dialect) Postgres() bool {
	return string(d) == DriverPostgres
}

// Rebind turns '?' placeholders into $n for Postgres.
func (d Dialect) Rebind(query string) string {
	if !d.Postgres() {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open connects to driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("sqldb: unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("sqldb: empty dsn")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// Single writer; also keeps per-connection pragmas in effect.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the iot_* tables when missing.
func Migrate(ctx context.Context, db DBTX, dialect Dialect) error {
	if db == nil {
		return errors.New("sqldb: nil db")
	}
	stmts := sqliteSchema
	if dialect.Postgres() {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqldb: migrate: %w", err)
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS iot_devices (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL UNIQUE,
	status          TEXT,
	units           TEXT,
	last_updated    TEXT,
	update_interval INTEGER,
	placed          TEXT,
	dev_type        TEXT,
	enabled         TEXT,
	state           TEXT,
	mode            TEXT,
	fan             TEXT,
	temperature     TEXT,
	dev_pub_topic   TEXT,
	dev_sub_topic   TEXT,
	special         TEXT
)`,
	`CREATE TABLE IF NOT EXISTS iot_data (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	device_name TEXT NOT NULL,
	metric      TEXT NOT NULL,
	value       REAL,
	value_text  TEXT,
	units       TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_iot_data_metric_id ON iot_data (metric, id)`,
	`CREATE TABLE IF NOT EXISTS iot_alerts (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      TEXT NOT NULL,
	level   TEXT,
	message TEXT
)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS iot_devices (
	id              BIGSERIAL PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	status          TEXT,
	units           TEXT,
	last_updated    TEXT,
	update_interval INTEGER,
	placed          TEXT,
	dev_type        TEXT,
	enabled         TEXT,
	state           TEXT,
	mode            TEXT,
	fan             TEXT,
	temperature     TEXT,
	dev_pub_topic   TEXT,
	dev_sub_topic   TEXT,
	special         TEXT
)`,
	`CREATE TABLE IF NOT EXISTS iot_data (
	id          BIGSERIAL PRIMARY KEY,
	ts          TEXT NOT NULL,
	device_name TEXT NOT NULL,
	metric      TEXT NOT NULL,
	value       DOUBLE PRECISION,
	value_text  TEXT,
	units       TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_iot_data_metric_id ON iot_data (metric, id)`,
	`CREATE TABLE IF NOT EXISTS iot_alerts (
	id      BIGSERIAL PRIMARY KEY,
	ts      TEXT NOT NULL,
	level   TEXT,
	message TEXT
)`,
}
