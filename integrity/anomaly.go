package integrity

import (
	"fmt"
	"strings"
	"time"

	"github.com/lattice-go/lattice/store"
)

// DuplicateRule flags entities of typ that share the same value tuple for
// the given fields. The earliest id (sorted order) is treated as canonical;
// every later duplicate yields one anomaly violation with a delete repair,
// related to the canonical entity.
func DuplicateRule(typ string, fields ...string) AnomalyRule {
	return AnomalyRule{
		Name: fmt.Sprintf("duplicate:%s(%s)", typ, strings.Join(fields, ",")),
		Detect: func(es store.Entities) []Violation {
			em := es[typ]
			seen := map[string]string{}
			var out []Violation
			for _, id := range store.SortedIDs(em) {
				key, ok := fieldTuple(em[id], fields)
				if !ok {
					continue
				}
				first, dup := seen[key]
				if !dup {
					seen[key] = id
					continue
				}
				out = append(out, Violation{
					Type:       ViolationAnomaly,
					Severity:   SeverityWarning,
					EntityType: typ,
					EntityID:   id,
					Related:    []string{typ + ":" + first},
					Message: fmt.Sprintf("%s %q duplicates %q on (%s)",
						typ, id, first, strings.Join(fields, ", ")),
					Repair: &RepairAction{Action: ActionDelete},
				})
			}
			return out
		},
	}
}

// StaleRule flags entities of typ whose timestamp field is older than
// maxAge. Timestamps are accepted as time.Time, RFC 3339 strings or Unix
// seconds; entities without a parseable timestamp are skipped.
func StaleRule(typ, field string, maxAge time.Duration) AnomalyRule {
	return AnomalyRule{
		Name: fmt.Sprintf("stale:%s.%s", typ, field),
		Detect: func(es store.Entities) []Violation {
			cutoff := time.Now().UTC().Add(-maxAge)
			em := es[typ]
			var out []Violation
			for _, id := range store.SortedIDs(em) {
				ts, ok := timestamp(em[id][field])
				if !ok || !ts.Before(cutoff) {
					continue
				}
				out = append(out, Violation{
					Type:       ViolationAnomaly,
					Severity:   SeverityWarning,
					EntityType: typ,
					EntityID:   id,
					Field:      field,
					Message: fmt.Sprintf("%s %q is stale: %s is %s old (max %s)",
						typ, id, field, time.Since(ts).Round(time.Second), maxAge),
				})
			}
			return out
		},
	}
}

// RequiredFieldsRule flags entities of typ that are missing (or hold nil or
// empty-string values in) any of the given fields.
func RequiredFieldsRule(typ string, fields ...string) AnomalyRule {
	return AnomalyRule{
		Name: fmt.Sprintf("required:%s(%s)", typ, strings.Join(fields, ",")),
		Detect: func(es store.Entities) []Violation {
			em := es[typ]
			var out []Violation
			for _, id := range store.SortedIDs(em) {
				entity := em[id]
				for _, field := range fields {
					value, present := entity[field]
					if present && value != nil && value != "" {
						continue
					}
					out = append(out, Violation{
						Type:       ViolationAnomaly,
						Severity:   SeverityError,
						EntityType: typ,
						EntityID:   id,
						Field:      field,
						Message:    fmt.Sprintf("%s %q is missing required field %q", typ, id, field),
					})
				}
			}
			return out
		},
	}
}

// ConsistencyRule wraps an arbitrary whole-store scan as an anomaly rule.
func ConsistencyRule(name string, detect func(es store.Entities) []Violation) AnomalyRule {
	return AnomalyRule{Name: name, Detect: detect}
}

// fieldTuple builds the duplicate-detection key from the named fields. An
// entity missing any of the fields is not considered for duplication.
func fieldTuple(e store.Entity, fields []string) (string, bool) {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		value, present := e[field]
		if !present || value == nil {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%v", value))
	}
	return strings.Join(parts, "\x1f"), true
}

func timestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		return ts, err == nil
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	default:
		return time.Time{}, false
	}
}
