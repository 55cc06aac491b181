package integrity_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/lattice-go/lattice/integrity"
	"github.com/lattice-go/lattice/store"
)

// TestReport_GoldenJSON pins the report wire shape: reports are consumed by
// logging/telemetry pipelines, so field names and structure are a contract.
func TestReport_GoldenJSON(t *testing.T) {
	checker := integrity.NewChecker(integrity.Config{
		Relations: []integrity.Relation{{
			From:     "posts",
			Field:    "author",
			To:       "users",
			Required: true,
			OnDelete: integrity.OnDeleteCascade,
		}},
	})
	es := store.Entities{
		"posts": {"1": {"id": "1", "title": "Hello", "author": "9"}},
	}

	report := checker.Check(es)

	// Zero the run-dependent fields so the fixture stays stable.
	report.Timestamp = time.Time{}
	report.Duration = 0

	raw, err := json.MarshalIndent(report, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "report", raw)
}
