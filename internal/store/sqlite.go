package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Column order and types are part of the on-disk format; do not reorder.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS network_connections (
    timestamp DATETIME,
    local_address TEXT,
    local_port INTEGER,
    remote_address TEXT,
    remote_port INTEGER,
    status TEXT,
    process_name TEXT,
    pid INTEGER,
    is_suspicious INTEGER
);
CREATE TABLE IF NOT EXISTS alerts (
    timestamp DATETIME,
    alert_type TEXT,
    description TEXT
);
`

// sqliteTimeLayout is how timestamps are stored (local time).
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

// SQLite is the default Log backed by a local database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}

	return &SQLite{db: db, path: path}, nil
}

// uriPathEscaper escapes the characters that end or escape the path part of
// an SQLite URI filename.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func sqliteDSN(path string) string {
	return "file:" + uriPathEscaper.Replace(path) + "?" +
		url.Values{"_pragma": {"busy_timeout(5000)"}}.Encode()
}

// Init implements Log.
func (s *SQLite) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// AppendObservation implements Log. Each row is committed in its own
// transaction.
func (s *SQLite) AppendObservation(ctx context.Context, obs Observation) error {
	return s.inTx(ctx, `INSERT INTO network_connections VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.Timestamp.Local().Format(sqliteTimeLayout),
		obs.LocalAddress,
		obs.LocalPort,
		obs.RemoteAddress,
		obs.RemotePort,
		obs.Status,
		obs.ProcessName,
		nullablePID(obs.PID),
		boolToInt(obs.IsSuspicious),
	)
}

// AppendAlert implements Log.
func (s *SQLite) AppendAlert(ctx context.Context, alert Alert) error {
	return s.inTx(ctx, `INSERT INTO alerts VALUES (?, ?, ?)`,
		alert.Timestamp.Local().Format(sqliteTimeLayout),
		alert.AlertType,
		alert.Description,
	)
}

func (s *SQLite) inTx(ctx context.Context, query string, args ...interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Counts implements Log.
func (s *SQLite) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_suspicious = 1 THEN 1 ELSE 0 END), 0)
		FROM network_connections`)
	if err := row.Scan(&c.Total, &c.Suspicious); err != nil {
		return Counts{}, fmt.Errorf("failed to count connections: %w", err)
	}
	return c, nil
}

// TopProcesses implements Log.
func (s *SQLite) TopProcesses(ctx context.Context, limit int) ([]ProcessCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT process_name, COUNT(*) AS connection_count
		FROM network_connections
		GROUP BY process_name
		ORDER BY connection_count DESC, MIN(rowid) ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top processes: %w", err)
	}
	defer rows.Close()

	var out []ProcessCount
	for rows.Next() {
		var (
			name sql.NullString
			pc   ProcessCount
		)
		if err := rows.Scan(&name, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top process: %w", err)
		}
		pc.ProcessName = name.String
		out = append(out, pc)
	}
	return out, rows.Err()
}

// RecentAlerts implements Log. The timestamp is cast to TEXT so the driver
// does not reinterpret the zone-less DATETIME value as UTC.
func (s *SQLite) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(timestamp AS TEXT), alert_type, description
		FROM alerts
		ORDER BY rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var (
			ts string
			a  Alert
		)
		if err := rows.Scan(&ts, &a.AlertType, &a.Description); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Timestamp, _ = time.ParseInLocation(sqliteTimeLayout, ts, time.Local)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close implements Log.
func (s *SQLite) Close() error {
	return s.db.Close()
}
