package monitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-go/lattice/integrity"
	"github.com/lattice-go/lattice/internal/metrics"
	"github.com/lattice-go/lattice/store"
)

// Snapshot is an immutable point-in-time fingerprint of the store's entity
// population: per-type counts plus an order-independent id digest. It is
// count-based, not content-based; payload edits that keep ids stable do not
// change the hash.
type Snapshot struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	EntityCounts map[string]int    `json:"entity_counts"`
	Hash         string            `json:"hash"`
	TypeHashes   map[string]string `json:"type_hashes,omitempty"`
	Label        string            `json:"label,omitempty"`
	Report       *integrity.Report `json:"report,omitempty"`
}

// DriftChanges breaks a drift result down per entity type. Added and Removed
// hold count deltas; Modified marks types whose population changed id
// membership at equal count.
type DriftChanges struct {
	Added    map[string]int `json:"added,omitempty"`
	Removed  map[string]int `json:"removed,omitempty"`
	Modified map[string]int `json:"modified,omitempty"`
}

// DriftResult reports divergence between a retained snapshot (source) and
// the store's current population (target). Detection is coarse: per-type
// count deltas plus hash inequality, never per-field diffs.
type DriftResult struct {
	HasDrift     bool         `json:"has_drift"`
	Source       Snapshot     `json:"source"`
	Target       Snapshot     `json:"target"`
	Changes      DriftChanges `json:"changes"`
	TotalChanges int          `json:"total_changes"`
}

// takeSnapshot builds the fingerprint without storing it.
func takeSnapshot(es store.Entities, label string, report *integrity.Report) Snapshot {
	return Snapshot{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		EntityCounts: store.Counts(es),
		Hash:         store.CountHash(es),
		TypeHashes:   store.TypeHashes(es),
		Label:        label,
		Report:       report,
	}
}

// CreateSnapshot fingerprints es, retains the snapshot in the monitor's ring
// buffer (oldest evicted past MaxSnapshots) and returns it. The most recent
// report, if any, travels with the snapshot.
func (m *Monitor) CreateSnapshot(es store.Entities, label string) Snapshot {
	m.mu.Lock()
	snap := takeSnapshot(es, label, m.lastReport)
	m.snapshots = append(m.snapshots, snap)
	if over := len(m.snapshots) - m.cfg.MaxSnapshots; over > 0 {
		m.snapshots = append([]Snapshot(nil), m.snapshots[over:]...)
	}
	m.mu.Unlock()

	metrics.Inc(metrics.SnapshotTotal)
	m.emit(newEvent(EventSnapshotCreated, map[string]any{
		"snapshot_id": snap.ID,
		"label":       label,
		"entities":    store.Total(es),
	}))
	return snap
}

// Snapshots returns the retained snapshots, oldest first.
func (m *Monitor) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Snapshot(nil), m.snapshots...)
}

// DetectDrift diffs es against the most recent snapshot. It fails only when
// no snapshot has been retained yet.
func (m *Monitor) DetectDrift(es store.Entities) (DriftResult, error) {
	m.mu.Lock()
	if len(m.snapshots) == 0 {
		m.mu.Unlock()
		return DriftResult{}, fmt.Errorf("detecting drift: no snapshot retained")
	}
	source := m.snapshots[len(m.snapshots)-1]
	m.mu.Unlock()
	return m.drift(source, es), nil
}

// CompareWithSnapshot diffs es against any retained snapshot by id.
func (m *Monitor) CompareWithSnapshot(es store.Entities, snapshotID string) (DriftResult, error) {
	m.mu.Lock()
	var source *Snapshot
	for i := range m.snapshots {
		if m.snapshots[i].ID == snapshotID {
			source = &m.snapshots[i]
			break
		}
	}
	m.mu.Unlock()
	if source == nil {
		return DriftResult{}, fmt.Errorf("comparing with snapshot: %q not retained", snapshotID)
	}
	return m.drift(*source, es), nil
}

func (m *Monitor) drift(source Snapshot, es store.Entities) DriftResult {
	target := takeSnapshot(es, "", nil)
	result := DriftResult{
		Source: source,
		Target: target,
		Changes: DriftChanges{
			Added:    map[string]int{},
			Removed:  map[string]int{},
			Modified: map[string]int{},
		},
	}

	types := map[string]bool{}
	for typ := range source.EntityCounts {
		types[typ] = true
	}
	for typ := range target.EntityCounts {
		types[typ] = true
	}

	for typ := range types {
		before := source.EntityCounts[typ]
		after := target.EntityCounts[typ]
		switch {
		case after > before:
			result.Changes.Added[typ] = after - before
			result.TotalChanges += after - before
		case after < before:
			result.Changes.Removed[typ] = before - after
			result.TotalChanges += before - after
		case source.TypeHashes[typ] != target.TypeHashes[typ]:
			// Same count, different id membership: one coarse change unit.
			result.Changes.Modified[typ] = 1
			result.TotalChanges++
		}
	}

	result.HasDrift = source.Hash != target.Hash
	if result.HasDrift {
		metrics.Inc(metrics.DriftTotal)
		m.emit(newEvent(EventDriftDetected, map[string]any{
			"source_id":     source.ID,
			"target_id":     target.ID,
			"total_changes": result.TotalChanges,
		}))
	}
	return result
}
