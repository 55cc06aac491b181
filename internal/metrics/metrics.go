// Package metrics provides application-level counters using stdlib expvar.
// Counters are automatically exported on the /debug/vars HTTP endpoint when
// net/http/pprof is imported in the consuming binary.
package metrics

import "expvar"

// Operation counters.
var (
	NormalizeTotal  = expvar.NewInt("lattice_normalize_total")
	CheckTotal      = expvar.NewInt("lattice_check_total")
	ViolationTotal  = expvar.NewInt("lattice_violation_total")
	RepairTotal     = expvar.NewInt("lattice_repair_total")
	SnapshotTotal   = expvar.NewInt("lattice_snapshot_total")
	DriftTotal      = expvar.NewInt("lattice_drift_detected_total")
	MonitorErrTotal = expvar.NewInt("lattice_monitor_error_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

// Add increments the given counter by n.
func Add(counter *expvar.Int, n int) { counter.Add(int64(n)) }
