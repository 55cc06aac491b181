// Package monitor wraps the integrity checker with continuous consistency
// monitoring: on-demand or timer-driven checks, optional auto-repair,
// snapshot/drift comparison and a typed event stream.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lattice-go/lattice/integrity"
	"github.com/lattice-go/lattice/internal/metrics"
	"github.com/lattice-go/lattice/store"
)

// Status is the monitor's externally visible state, driven entirely by
// Check and Repair outcomes.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusChecking  Status = "checking"
	StatusValid     Status = "valid"
	StatusInvalid   Status = "invalid"
	StatusRepairing Status = "repairing"
	// StatusError means the checker itself panicked; it is sticky until the
	// next successful Check.
	StatusError Status = "error"
)

// Defaults for the monitor's bounded buffers.
const (
	DefaultMaxSnapshots = 10
	DefaultMaxHistory   = 100
)

// GetEntities supplies the current canonical store. The monitor re-invokes
// it on every scheduled tick and never caches the result between ticks.
type GetEntities func() store.Entities

// Config configures a Monitor.
type Config struct {
	// Checker runs the integrity scans. Required.
	Checker *integrity.Checker
	// CheckInterval drives scheduled checking; 0 means on-demand only.
	CheckInterval time.Duration
	// AutoRepair triggers a Repair immediately after any violation-bearing
	// Check. The caller still owns writing the repaired store back.
	AutoRepair bool
	// RepairOptions applies to auto-repairs.
	RepairOptions integrity.RepairOptions
	// MaxSnapshots bounds the snapshot ring buffer; 0 means the default.
	MaxSnapshots int
	// MaxHistory bounds the event history; 0 means the default.
	MaxHistory int
	// Logger receives structured monitor logs; nil uses slog.Default.
	Logger *slog.Logger
}

// Monitor schedules integrity checks over a caller-owned store and tracks
// the outcomes. It never mutates the canonical store; repaired entities are
// handed back through RepairResult for the caller to merge.
//
// Concurrent Check calls are not serialized: status and the last report are
// last-writer-wins, as are two monitors sharing one store. Callers needing
// serialized checks must serialize externally.
type Monitor struct {
	cfg     cfgNorm
	checker *integrity.Checker
	logger  *slog.Logger

	mu         sync.Mutex
	status     Status
	lastReport *integrity.Report
	lastRepair *integrity.RepairResult
	snapshots  []Snapshot
	history    []Event
	listeners  map[int]Listener
	nextSub    int

	timerMu sync.Mutex
	stop    chan struct{}
	running bool
}

type cfgNorm struct {
	CheckInterval time.Duration
	AutoRepair    bool
	RepairOptions integrity.RepairOptions
	MaxSnapshots  int
	MaxHistory    int
}

// New creates a Monitor from cfg. It panics when cfg.Checker is nil, since
// a monitor without a checker cannot do anything.
func New(cfg Config) *Monitor {
	if cfg.Checker == nil {
		panic("monitor: Config.Checker must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	norm := cfgNorm{
		CheckInterval: cfg.CheckInterval,
		AutoRepair:    cfg.AutoRepair,
		RepairOptions: cfg.RepairOptions,
		MaxSnapshots:  cfg.MaxSnapshots,
		MaxHistory:    cfg.MaxHistory,
	}
	if norm.MaxSnapshots <= 0 {
		norm.MaxSnapshots = DefaultMaxSnapshots
	}
	if norm.MaxHistory <= 0 {
		norm.MaxHistory = DefaultMaxHistory
	}
	return &Monitor{
		cfg:       norm,
		checker:   cfg.Checker,
		logger:    logger,
		status:    StatusIdle,
		listeners: map[int]Listener{},
	}
}

// Status returns the monitor's current state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastReport returns the most recent check report, or nil before any check.
func (m *Monitor) LastReport() *integrity.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReport
}

// LastRepair returns the most recent repair result, or nil.
func (m *Monitor) LastRepair() *integrity.RepairResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRepair
}

// Check runs one integrity check over es. A panicking checker rule is
// recovered here: status goes to error (sticky until the next successful
// check), an error event fires and the panic value is returned as the error.
// Data problems never produce an error; they land in the report.
func (m *Monitor) Check(ctx context.Context, es store.Entities) (report integrity.Report, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return integrity.Report{}, ctxErr
	}

	m.setStatus(StatusChecking)
	m.emit(newEvent(EventCheckStart, map[string]any{"entities": store.Total(es)}))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("integrity check panicked: %v", r)
			metrics.Inc(metrics.MonitorErrTotal)
			m.setStatus(StatusError)
			m.emit(newEvent(EventError, map[string]any{"error": err.Error()}))
			m.logger.Error("integrity check failed", "error", err)
		}
	}()

	report = m.checker.Check(es)

	m.mu.Lock()
	m.lastReport = &report
	m.mu.Unlock()

	if report.Valid {
		m.setStatus(StatusValid)
	} else {
		m.setStatus(StatusInvalid)
	}
	m.emit(newEvent(EventCheckComplete, map[string]any{
		"valid":      report.Valid,
		"violations": len(report.Violations),
	}))
	if len(report.Violations) > 0 {
		m.emit(newEvent(EventViolationDetected, map[string]any{
			"count":    len(report.Violations),
			"errors":   report.Stats.Errors,
			"warnings": report.Stats.Warnings,
		}))
		if m.cfg.AutoRepair {
			m.Repair(es, report)
		}
	}
	return report, nil
}

// Repair runs the checker's repair pass for report and retains the result
// for LastRepair. The canonical store is untouched; the caller writes
// Result.Entities back.
func (m *Monitor) Repair(es store.Entities, report integrity.Report) integrity.RepairResult {
	m.setStatus(StatusRepairing)
	m.emit(newEvent(EventRepairStart, map[string]any{"violations": len(report.Violations)}))

	result := m.checker.Repair(es, report, m.cfg.RepairOptions)

	m.mu.Lock()
	m.lastRepair = &result
	m.mu.Unlock()

	if report.Valid {
		m.setStatus(StatusValid)
	} else {
		m.setStatus(StatusInvalid)
	}
	m.emit(newEvent(EventRepairComplete, map[string]any{
		"applied":   len(result.Repairs),
		"remaining": len(result.Remaining),
	}))
	return result
}

// Start begins timer-driven checking, re-reading the store through get on
// every tick. It is idempotent while already active and a no-op when the
// monitor is configured on-demand (CheckInterval of zero).
func (m *Monitor) Start(get GetEntities) {
	if m.cfg.CheckInterval <= 0 {
		m.logger.Debug("monitor is on-demand (no check interval); Start is a no-op")
		return
	}

	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})

	go m.run(get, m.stop)
	m.logger.Info("monitor started", "interval", m.cfg.CheckInterval)
}

func (m *Monitor) run(get GetEntities, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Errors surface through status and the event stream.
			_, _ = m.Check(context.Background(), get())
		}
	}
}

// Stop halts timer-driven checking. The timer is the only implicit
// re-entrancy source and has no automatic disposal, so long-lived callers
// must pair every Start with a Stop.
func (m *Monitor) Stop() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if !m.running {
		return
	}
	close(m.stop)
	m.running = false
	m.logger.Info("monitor stopped")
}

// Subscribe registers a listener for every emitted event and returns its
// unsubscribe function.
func (m *Monitor) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// History returns the retained event history, oldest first.
func (m *Monitor) History() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.history...)
}

// Dispose stops the timer and releases listeners, history and snapshots.
// The monitor is unusable for scheduling afterwards.
func (m *Monitor) Dispose() {
	m.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = map[int]Listener{}
	m.history = nil
	m.snapshots = nil
	m.status = StatusIdle
}

func (m *Monitor) setStatus(s Status) {
	m.mu.Lock()
	prev := m.status
	m.status = s
	m.mu.Unlock()
	if prev != s {
		m.emit(newEvent(EventStatusChange, map[string]any{
			"from": string(prev),
			"to":   string(s),
		}))
	}
}

// emit appends to the bounded history and fans out to listeners. Listener
// panics are recovered and logged per listener; they never reach the
// emitting call or other listeners.
func (m *Monitor) emit(e Event) {
	m.mu.Lock()
	m.history = append(m.history, e)
	if over := len(m.history) - m.cfg.MaxHistory; over > 0 {
		m.history = append([]Event(nil), m.history[over:]...)
	}
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		m.notify(fn, e)
	}
}

func (m *Monitor) notify(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("monitor listener panicked", "event", e.Type, "panic", r)
		}
	}()
	fn(e)
}
