// Package store is the append-only persistent log of connection
// observations and alerts.
//
// Rows are only ever inserted. No code path updates or deletes a persisted
// observation.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/connwatch/internal/config"
)

// Sentinel values for observations without a peer.
const (
	NoRemoteAddress = "N/A"
	NoRemotePort    = 0
)

// AlertSuspiciousConnection is the alert_type of per-pass alerts.
const AlertSuspiciousConnection = "SUSPICIOUS_CONNECTION"

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Observation is one row of network_connections.
type Observation struct {
	Timestamp     time.Time
	LocalAddress  string
	LocalPort     int
	RemoteAddress string // NoRemoteAddress when the socket has no peer
	RemotePort    int    // NoRemotePort when the socket has no peer
	Status        string
	ProcessName   string
	PID           int32 // 0 is persisted as NULL
	IsSuspicious  bool
}

// Alert is one row of alerts.
type Alert struct {
	Timestamp   time.Time `json:"timestamp"`
	AlertType   string    `json:"alert_type"`
	Description string    `json:"description"`
}

// Counts are the lifetime observation counters.
type Counts struct {
	Total      int64
	Suspicious int64
}

// ProcessCount is one entry of the top-talkers query.
type ProcessCount struct {
	ProcessName string `json:"process_name"`
	Count       int64  `json:"count"`
}

// Log is the persistent log. Each Append is its own durable write; a failed
// append leaves previously appended rows in place.
type Log interface {
	// Init creates the schema if it does not exist. It is safe to call on
	// every startup.
	Init(ctx context.Context) error
	AppendObservation(ctx context.Context, obs Observation) error
	AppendAlert(ctx context.Context, alert Alert) error
	// Counts returns the number of observations ever persisted and how many
	// of them were suspicious.
	Counts(ctx context.Context) (Counts, error)
	// TopProcesses returns up to limit process names by descending row
	// count. Ties keep the order in which the names first appeared.
	TopProcesses(ctx context.Context, limit int) ([]ProcessCount, error)
	// RecentAlerts returns up to limit alerts, newest first.
	RecentAlerts(ctx context.Context, limit int) ([]Alert, error)
	Close() error
}

// Open creates the configured backend and initializes its schema.
func Open(ctx context.Context, cfg config.Storage) (Log, error) {
	var (
		l   Log
		err error
	)
	switch cfg.Backend {
	case config.BackendSQLite, "":
		l, err = NewSQLite(cfg.SQLite.Path)
	case config.BackendClickHouse:
		l, err = NewClickHouse(ctx, cfg.ClickHouse)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := l.Init(ctx); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to initialize %s schema: %w", cfg.Backend, err)
	}
	return l, nil
}

func nullablePID(pid int32) interface{} {
	if pid <= 0 {
		return nil
	}
	return pid
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
