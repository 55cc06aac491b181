package integrity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-go/lattice/integrity"
	"github.com/lattice-go/lattice/store"
)

func TestDuplicateRule(t *testing.T) {
	checker := integrity.NewChecker(integrity.Config{
		AnomalyRules: []integrity.AnomalyRule{
			integrity.DuplicateRule("posts", "title", "authorId"),
		},
	})
	es := store.Entities{
		"posts": {
			"1": {"id": "1", "title": "Hello", "authorId": "9"},
			"2": {"id": "2", "title": "Hello", "authorId": "9"},
			"3": {"id": "3", "title": "Hello", "authorId": "10"},
		},
	}

	report := checker.Check(es)
	require.Len(t, report.Violations, 1, "exactly one anomaly naming the later duplicate")
	v := report.Violations[0]
	assert.Equal(t, integrity.ViolationAnomaly, v.Type)
	assert.Equal(t, "2", v.EntityID)
	assert.Equal(t, []string{"posts:1"}, v.Related)
	require.NotNil(t, v.Repair)
	assert.Equal(t, integrity.ActionDelete, v.Repair.Action)
}

func TestDuplicateRule_SkipsEntitiesMissingTupleFields(t *testing.T) {
	checker := integrity.NewChecker(integrity.Config{
		AnomalyRules: []integrity.AnomalyRule{
			integrity.DuplicateRule("posts", "title"),
		},
	})
	es := store.Entities{
		"posts": {
			"1": {"id": "1"},
			"2": {"id": "2"},
		},
	}

	report := checker.Check(es)
	assert.Empty(t, report.Violations)
}

func TestStaleRule(t *testing.T) {
	checker := integrity.NewChecker(integrity.Config{
		AnomalyRules: []integrity.AnomalyRule{
			integrity.StaleRule("sessions", "updated_at", time.Hour),
		},
	})
	es := store.Entities{
		"sessions": {
			"old":      {"id": "old", "updated_at": time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)},
			"fresh":    {"id": "fresh", "updated_at": time.Now().UTC().Format(time.RFC3339)},
			"untagged": {"id": "untagged"},
		},
	}

	report := checker.Check(es)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "old", report.Violations[0].EntityID)
	assert.Equal(t, integrity.SeverityWarning, report.Violations[0].Severity)
}

func TestRequiredFieldsRule(t *testing.T) {
	checker := integrity.NewChecker(integrity.Config{
		AnomalyRules: []integrity.AnomalyRule{
			integrity.RequiredFieldsRule("users", "name", "email"),
		},
	})
	es := store.Entities{
		"users": {
			"1": {"id": "1", "name": "Alice", "email": "a@example.com"},
			"2": {"id": "2", "name": ""},
		},
	}

	report := checker.Check(es)
	// User 2: empty name plus missing email.
	require.Len(t, report.Violations, 2)
	for _, v := range report.Violations {
		assert.Equal(t, "2", v.EntityID)
		assert.Equal(t, integrity.SeverityError, v.Severity)
	}
	assert.False(t, report.Valid)
}

func TestConsistencyRule(t *testing.T) {
	rule := integrity.ConsistencyRule("user-post-parity", func(es store.Entities) []integrity.Violation {
		if len(es["users"]) < len(es["posts"]) {
			return []integrity.Violation{{
				Message:  "more posts than users",
				Severity: integrity.SeverityInfo,
			}}
		}
		return nil
	})
	checker := integrity.NewChecker(integrity.Config{
		AnomalyRules: []integrity.AnomalyRule{rule},
	})

	es := store.Entities{
		"posts": {"1": {"id": "1"}, "2": {"id": "2"}},
		"users": {"9": {"id": "9"}},
	}
	report := checker.Check(es)
	require.Len(t, report.Violations, 1)
	// The checker fills in the anomaly type and keeps the rule's severity.
	assert.Equal(t, integrity.ViolationAnomaly, report.Violations[0].Type)
	assert.Equal(t, integrity.SeverityInfo, report.Violations[0].Severity)
	assert.Equal(t, 1, report.Stats.Infos)
	assert.True(t, report.Valid)
}
