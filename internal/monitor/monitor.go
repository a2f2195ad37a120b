// Package monitor runs the sampling loop: enumerate connections, classify
// them, persist every observation, raise one alert per pass with suspicious
// connections, and summarize the log.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/connwatch/internal/aggregate"
	"github.com/user/connwatch/internal/connmon"
	"github.com/user/connwatch/internal/logger"
	"github.com/user/connwatch/internal/policy"
	"github.com/user/connwatch/internal/store"
)

// DefaultInterval is the sleep between passes.
const DefaultInterval = 30 * time.Second

// ErrStartup marks failures that must stop the daemon before the first pass.
var ErrStartup = errors.New("monitor startup failed")

// ErrAlreadyRunning is returned by Run when another Run is active.
var ErrAlreadyRunning = errors.New("monitor already running")

// NameResolver maps a pid to a process name. It never fails; unknown pids
// resolve to connmon.UnknownProcess.
type NameResolver interface {
	Resolve(ctx context.Context, pid int32) string
}

// Options configures a Monitor. Source, Policy and Log are required.
type Options struct {
	Source   connmon.Source
	Resolver NameResolver
	Policy   *policy.Policy
	Log      store.Log
	Interval time.Duration
	States   connmon.StateSet
	Clock    Clock
	Hooks    []Hook
}

// Monitor is the sampling loop. Only one Run may be active at a time.
type Monitor struct {
	source     connmon.Source
	resolver   NameResolver
	policy     *policy.Policy
	log        store.Log
	aggregator *aggregate.Aggregator
	interval   time.Duration
	states     connmon.StateSet
	clock      Clock
	hooks      []Hook

	mu         sync.RWMutex
	state      State
	running    bool
	cycles     uint64
	startedAt  time.Time
	lastReport *CycleReport
}

// New creates a Monitor in the Idle state.
func New(opts Options) (*Monitor, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("monitor: connection source is required")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("monitor: policy is required")
	}
	if opts.Log == nil {
		return nil, fmt.Errorf("monitor: persistent log is required")
	}

	m := &Monitor{
		source:     opts.Source,
		resolver:   opts.Resolver,
		policy:     opts.Policy,
		log:        opts.Log,
		aggregator: aggregate.New(opts.Log),
		interval:   opts.Interval,
		states:     opts.States,
		clock:      opts.Clock,
		hooks:      opts.Hooks,
		state:      StateIdle,
	}
	if m.resolver == nil {
		m.resolver = connmon.NewResolver(0, 0, nil)
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if len(m.states) == 0 {
		m.states = connmon.DefaultStates()
	}
	if m.clock == nil {
		m.clock = RealClock{}
	}
	return m, nil
}

// AddHook registers h for every following pass. It must be called before Run.
func (m *Monitor) AddHook(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastReport returns the report of the most recent pass, or nil.
func (m *Monitor) LastReport() *CycleReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReport
}

// Status returns a snapshot for status endpoints.
func (m *Monitor) Status() *Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Status{
		State:      m.state,
		Interval:   m.interval.String(),
		Cycles:     m.cycles,
		StartedAt:  m.startedAt,
		LastReport: m.lastReport,
	}
}

// Summarize computes the lifetime summary from the log.
func (m *Monitor) Summarize(ctx context.Context) (*aggregate.Summary, error) {
	return m.aggregator.Summarize(ctx)
}

// RecentAlerts returns up to limit alerts, newest first.
func (m *Monitor) RecentAlerts(ctx context.Context, limit int) ([]store.Alert, error) {
	return m.log.RecentAlerts(ctx, limit)
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Preflight performs one enumeration without recording anything. A failure
// here usually means missing privileges and is wrapped in ErrStartup.
func (m *Monitor) Preflight(ctx context.Context) error {
	if _, err := m.source.Connections(ctx); err != nil {
		return fmt.Errorf("%w: cannot enumerate connections: %w", ErrStartup, err)
	}
	return nil
}

// Run executes passes until ctx is canceled, sleeping the configured interval
// between them. Cancellation interrupts a sleep immediately; a pass in
// progress runs to completion first. Run returns nil once stopped.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.startedAt = m.clock.Now()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.state = StateStopped
		m.mu.Unlock()
	}()

	logger.Info("Connection monitor started, interval %s", m.interval)
	for {
		if ctx.Err() != nil {
			logger.Info("Connection monitor stopped")
			return nil
		}

		m.RunOnce(ctx)

		// Canceled during the pass: stop at the sleep boundary without waiting.
		if ctx.Err() != nil {
			logger.Info("Connection monitor stopped")
			return nil
		}

		m.setState(StateSleeping)
		select {
		case <-ctx.Done():
			logger.Info("Connection monitor stopped")
			return nil
		case <-m.clock.After(m.interval):
		}
	}
}

// RunOnce executes a single pass and notifies the hooks. The returned report
// is never nil; its Err is also returned.
func (m *Monitor) RunOnce(ctx context.Context) (*CycleReport, error) {
	start := m.clock.Now()
	r := &CycleReport{
		PassID:    uuid.NewString(),
		Timestamp: start,
		Findings:  []Finding{},
	}

	if err := m.cycle(ctx, r); err != nil {
		r.Err = err
		r.Error = err.Error()
		logger.Error("Connection analysis failed: %v", err)
	}
	r.Duration = m.clock.Now().Sub(start)

	m.setState(StateReporting)
	m.mu.Lock()
	m.cycles++
	m.lastReport = r
	hooks := m.hooks
	m.mu.Unlock()

	for _, h := range hooks {
		m.notify(h, r)
	}
	return r, r.Err
}

func (m *Monitor) notify(h Hook, r *CycleReport) {
	defer logger.Recover("monitor hook")
	h.CycleCompleted(r)
}

type classified struct {
	conn  connmon.Connection
	name  string
	rules []string
}

// cycle runs Sampling through Summarizing. Panics are turned into errors so
// a single bad pass never ends the loop.
func (m *Monitor) cycle(ctx context.Context, r *CycleReport) (err error) {
	defer logger.RecoverInto("monitor cycle", &err)

	m.setState(StateSampling)
	conns, err := m.source.Connections(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate connections: %w", err)
	}

	m.setState(StateClassifying)
	conns = connmon.FilterStates(conns, m.states)
	connmon.SortConnectionsByState(conns)

	batch := make([]classified, 0, len(conns))
	for _, c := range conns {
		batch = append(batch, classified{
			conn:  c,
			name:  m.resolver.Resolve(ctx, c.PID),
			rules: m.policy.Evaluate(c),
		})
	}

	// Writes already started are not abandoned on cancellation.
	wctx := context.WithoutCancel(ctx)

	m.setState(StatePersisting)
	for _, b := range batch {
		suspicious := len(b.rules) > 0
		r.Observed++
		if err := m.log.AppendObservation(wctx, observation(r.Timestamp, b, suspicious)); err != nil {
			r.PersistErrors++
			logger.Error("Error logging connection %s: %v", b.conn.Key(), err)
		}
		if suspicious {
			r.Suspicious++
			r.Findings = append(r.Findings, finding(b))
		}
	}

	if len(r.Findings) > 0 {
		logger.Warning("Detected %d suspicious connections", len(r.Findings))
		desc, err := AlertDescription(r.Findings)
		if err != nil {
			return fmt.Errorf("failed to encode alert: %w", err)
		}
		alert := store.Alert{
			Timestamp:   r.Timestamp,
			AlertType:   store.AlertSuspiciousConnection,
			Description: desc,
		}
		if err := m.log.AppendAlert(wctx, alert); err != nil {
			r.PersistErrors++
			logger.Error("Error logging alert: %v", err)
		} else {
			r.AlertWritten = true
		}
	}

	m.setState(StateSummarizing)
	// Rows of this pass are already persisted, so a failed summary does not
	// fail the pass.
	summary, err := m.aggregator.Summarize(wctx)
	if err != nil {
		r.SummaryError = err.Error()
		logger.Error("Connection summary failed: %v", err)
		return nil
	}
	r.Summary = summary
	logger.Debug("Pass %s: %d observed, %d suspicious, %d persist errors",
		r.PassID, r.Observed, r.Suspicious, r.PersistErrors)
	return nil
}

func observation(ts time.Time, b classified, suspicious bool) store.Observation {
	obs := store.Observation{
		Timestamp:     ts,
		LocalAddress:  b.conn.LocalAddr.Addr().String(),
		LocalPort:     int(b.conn.LocalAddr.Port()),
		RemoteAddress: store.NoRemoteAddress,
		RemotePort:    store.NoRemotePort,
		Status:        b.conn.State.String(),
		ProcessName:   b.name,
		PID:           b.conn.PID,
		IsSuspicious:  suspicious,
	}
	if b.conn.HasRemote() {
		obs.RemoteAddress = b.conn.RemoteAddr.Addr().String()
		obs.RemotePort = int(b.conn.RemoteAddr.Port())
	}
	return obs
}

func finding(b classified) Finding {
	f := Finding{
		Local:   endpoint(b.conn.LocalAddr),
		Remote:  store.NoRemoteAddress,
		Status:  b.conn.State.String(),
		Process: b.name,
		PID:     b.conn.PID,
		Rules:   b.rules,
	}
	if b.conn.HasRemote() {
		f.Remote = endpoint(b.conn.RemoteAddr)
	}
	return f
}

func endpoint(ap netip.AddrPort) string {
	return fmt.Sprintf("%s:%d", ap.Addr(), ap.Port())
}

type alertEntry struct {
	Local   string `json:"local"`
	Remote  string `json:"remote"`
	Status  string `json:"status"`
	Process string `json:"process"`
}

// AlertDescription renders findings as the description of an alert row: an
// indented JSON array of {local, remote, status, process}.
func AlertDescription(findings []Finding) (string, error) {
	entries := make([]alertEntry, len(findings))
	for i, f := range findings {
		entries[i] = alertEntry{Local: f.Local, Remote: f.Remote, Status: f.Status, Process: f.Process}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
