package store

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/user/connwatch/internal/config"
	"github.com/user/connwatch/internal/logger"
)

// Same column order as the SQLite schema.
var clickhouseSchema = []string{`
CREATE TABLE IF NOT EXISTS network_connections (
    timestamp      DateTime64(6),
    local_address  String,
    local_port     UInt16,
    remote_address String,
    remote_port    UInt16,
    status         LowCardinality(String),
    process_name   String,
    pid            Nullable(Int32),
    is_suspicious  UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(timestamp)
ORDER BY timestamp;
`, `
CREATE TABLE IF NOT EXISTS alerts (
    timestamp   DateTime64(6),
    alert_type  LowCardinality(String),
    description String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(timestamp)
ORDER BY timestamp;
`}

// ClickHouse is a Log stored in a ClickHouse server.
type ClickHouse struct {
	conn driver.Conn
}

// NewClickHouse connects to the server described by cfg.
func NewClickHouse(ctx context.Context, cfg config.ClickHouse) (*ClickHouse, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	logger.Info("Connected to ClickHouse at %s:%d", cfg.Host, cfg.Port)
	return &ClickHouse{conn: conn}, nil
}

func connect(ctx context.Context, cfg config.ClickHouse) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Init implements Log.
func (c *ClickHouse) Init(ctx context.Context) error {
	for _, stmt := range clickhouseSchema {
		if err := c.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// AppendObservation implements Log. Each row is sent as its own batch.
func (c *ClickHouse) AppendObservation(ctx context.Context, obs Observation) error {
	var pid *int32
	if obs.PID > 0 {
		p := obs.PID
		pid = &p
	}
	return c.insert(ctx, "INSERT INTO network_connections",
		obs.Timestamp,
		obs.LocalAddress,
		uint16(obs.LocalPort),
		obs.RemoteAddress,
		uint16(obs.RemotePort),
		obs.Status,
		obs.ProcessName,
		pid,
		uint8(boolToInt(obs.IsSuspicious)),
	)
}

// AppendAlert implements Log.
func (c *ClickHouse) AppendAlert(ctx context.Context, alert Alert) error {
	return c.insert(ctx, "INSERT INTO alerts", alert.Timestamp, alert.AlertType, alert.Description)
}

func (c *ClickHouse) insert(ctx context.Context, stmt string, values ...interface{}) error {
	batch, err := c.conn.PrepareBatch(ctx, stmt)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := batch.Append(values...); err != nil {
		batch.Abort()
		return fmt.Errorf("failed to append row: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Counts implements Log.
func (c *ClickHouse) Counts(ctx context.Context) (Counts, error) {
	var total, suspicious uint64
	row := c.conn.QueryRow(ctx, `SELECT count(), countIf(is_suspicious = 1) FROM network_connections`)
	if err := row.Scan(&total, &suspicious); err != nil {
		return Counts{}, fmt.Errorf("failed to count connections: %w", err)
	}
	return Counts{Total: int64(total), Suspicious: int64(suspicious)}, nil
}

// TopProcesses implements Log. Ties are broken by first appearance.
func (c *ClickHouse) TopProcesses(ctx context.Context, limit int) ([]ProcessCount, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT process_name, count() AS connection_count
		FROM network_connections
		GROUP BY process_name
		ORDER BY connection_count DESC, min(timestamp) ASC, process_name ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top processes: %w", err)
	}
	defer rows.Close()

	var out []ProcessCount
	for rows.Next() {
		var (
			name  string
			count uint64
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan top process: %w", err)
		}
		out = append(out, ProcessCount{ProcessName: name, Count: int64(count)})
	}
	return out, rows.Err()
}

// RecentAlerts implements Log.
func (c *ClickHouse) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT timestamp, alert_type, description
		FROM alerts
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.Timestamp, &a.AlertType, &a.Description); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close implements Log.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
