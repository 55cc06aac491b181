package monitor_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-go/lattice/monitor"
	"github.com/lattice-go/lattice/store"
)

func threeUsers() store.Entities {
	return store.Entities{
		"users": {
			"1": {"id": "1", "name": "Alice"},
			"2": {"id": "2", "name": "Bob"},
			"3": {"id": "3", "name": "Cara"},
		},
	}
}

func TestCreateSnapshot(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	snap := m.CreateSnapshot(threeUsers(), "baseline")
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "baseline", snap.Label)
	assert.Equal(t, map[string]int{"users": 3}, snap.EntityCounts)
	assert.NotEmpty(t, snap.Hash)

	require.Len(t, m.Snapshots(), 1)
	assert.Equal(t, snap.ID, m.Snapshots()[0].ID)
}

func TestSnapshot_CarriesLastReport(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	_, err := m.Check(context.Background(), threeUsers())
	require.NoError(t, err)

	snap := m.CreateSnapshot(threeUsers(), "")
	require.NotNil(t, snap.Report)
	assert.True(t, snap.Report.Valid)
}

func TestSnapshot_RingBufferEvictsOldest(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker(), MaxSnapshots: 3})
	defer m.Dispose()

	var ids []string
	for i := 0; i < 5; i++ {
		snap := m.CreateSnapshot(threeUsers(), fmt.Sprintf("s%d", i))
		ids = append(ids, snap.ID)
	}

	snaps := m.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, ids[2:], []string{snaps[0].ID, snaps[1].ID, snaps[2].ID})
}

func TestDetectDrift_NoOp(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	es := threeUsers()
	m.CreateSnapshot(es, "")
	result, err := m.DetectDrift(es)
	require.NoError(t, err)
	assert.False(t, result.HasDrift)
	assert.Zero(t, result.TotalChanges)
}

func TestDetectDrift_RemovedEntity(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	es := threeUsers()
	m.CreateSnapshot(es, "before")
	after := store.Remove(es, "users", "2")

	result, err := m.DetectDrift(after)
	require.NoError(t, err)
	assert.True(t, result.HasDrift)
	assert.Equal(t, 1, result.Changes.Removed["users"])
	assert.Empty(t, result.Changes.Added)
	assert.Equal(t, 1, result.TotalChanges)
}

func TestDetectDrift_AddedType(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	es := threeUsers()
	m.CreateSnapshot(es, "")
	after := store.Update(es, "posts", "1", store.Entity{"id": "1"})

	result, err := m.DetectDrift(after)
	require.NoError(t, err)
	assert.True(t, result.HasDrift)
	assert.Equal(t, 1, result.Changes.Added["posts"])
	assert.Equal(t, 1, result.TotalChanges)
}

func TestDetectDrift_SameCountDifferentIDs(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	es := store.Entities{"users": {"1": {"id": "1"}}}
	m.CreateSnapshot(es, "")
	swapped := store.Entities{"users": {"2": {"id": "2"}}}

	result, err := m.DetectDrift(swapped)
	require.NoError(t, err)
	assert.True(t, result.HasDrift)
	assert.Equal(t, 1, result.Changes.Modified["users"])
	assert.Equal(t, 1, result.TotalChanges)
}

func TestDetectDrift_PayloadEditsAreInvisible(t *testing.T) {
	// Detection is count-based; editing a field without touching ids is not
	// drift.
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	es := threeUsers()
	m.CreateSnapshot(es, "")
	edited := store.Update(es, "users", "1", store.Entity{"name": "Alicia"})

	result, err := m.DetectDrift(edited)
	require.NoError(t, err)
	assert.False(t, result.HasDrift)
}

func TestDetectDrift_RequiresSnapshot(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	_, err := m.DetectDrift(threeUsers())
	assert.Error(t, err)
}

func TestCompareWithSnapshot(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	es := threeUsers()
	first := m.CreateSnapshot(es, "first")
	m.CreateSnapshot(store.Remove(es, "users", "3"), "second")

	// Compare against the older snapshot, not the latest.
	result, err := m.CompareWithSnapshot(store.Remove(es, "users", "3"), first.ID)
	require.NoError(t, err)
	assert.True(t, result.HasDrift)
	assert.Equal(t, 1, result.Changes.Removed["users"])

	_, err = m.CompareWithSnapshot(es, "unknown-id")
	assert.Error(t, err)
}

func TestSnapshotAndDrift_AreJSONSerializable(t *testing.T) {
	m := monitor.New(monitor.Config{Checker: newChecker()})
	defer m.Dispose()

	es := threeUsers()
	snap := m.CreateSnapshot(es, "wire")
	result, err := m.DetectDrift(store.Remove(es, "users", "1"))
	require.NoError(t, err)

	for _, v := range []any{snap, result, m.History()} {
		_, err := json.Marshal(v)
		assert.NoError(t, err)
	}
}
