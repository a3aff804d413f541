package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/i474232898/dht-telemetry/internal/common"
	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
  ts          TEXT PRIMARY KEY,
  temperature REAL,
  humidity    REAL
);
`

const (
	selectReadingsSQL = `SELECT ts, temperature, humidity FROM readings ORDER BY ts`
	insertReadingSQL  = `INSERT OR IGNORE INTO readings (ts, temperature, humidity) VALUES (?, ?, ?)`
)

var _ Journal = (*SQLiteJournal)(nil)

// SQLiteJournal persists readings in a single SQLite table keyed by timestamp.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLiteJournal opens (lazily) the database file at path.
func OpenSQLiteJournal(path string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// Single writer; one connection also keeps WAL checkpoints simple.
	db.SetMaxOpenConns(1)

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Load(ctx context.Context) ([]telemetry.Reading, error) {
	if _, err := j.db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, classifySQLiteErr(err)
	}

	rows, err := j.db.QueryContext(ctx, selectReadingsSQL)
	if err != nil {
		return nil, classifySQLiteErr(err)
	}
	defer rows.Close()

	var out []telemetry.Reading
	for rows.Next() {
		var (
			ts        string
			temp, hum sql.NullFloat64
		)
		if err := rows.Scan(&ts, &temp, &hum); err != nil {
			return nil, fmt.Errorf("%w: scan reading: %v", ErrStoreCorrupt, err)
		}
		t, ok := telemetry.ParseTimestamp(ts)
		if !ok {
			return nil, fmt.Errorf("%w: invalid timestamp %q", ErrStoreCorrupt, ts)
		}
		out = append(out, telemetry.Reading{
			Timestamp:   t,
			Temperature: nullable(temp),
			Humidity:    nullable(hum),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteErr(err)
	}
	return out, nil
}

func (j *SQLiteJournal) Append(ctx context.Context, readings []telemetry.Reading) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertReadingSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, telemetry.FormatTimestamp(r.Timestamp), sqlValue(r.Temperature), sqlValue(r.Humidity)); err != nil {
			return fmt.Errorf("insert reading: %w", err)
		}
	}
	return tx.Commit()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// classifySQLiteErr maps "this file is not (or no longer) a database" to ErrStoreCorrupt
// and any other load failure to ErrStoreUnavailable.
func classifySQLiteErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrNotADB || sqliteErr.Code == sqlite3.ErrCorrupt) {
		return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	if common.ContainsAnyFold(err.Error(), "file is not a database", "disk image is malformed") {
		return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func sqlValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
