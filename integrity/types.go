// Package integrity validates the flat entity store against declared
// relations, custom constraints and anomaly rules, and can mechanically
// repair what it finds. Data problems are never returned as errors: they
// surface as severity-classified violations inside a report.
package integrity

import (
	"time"

	"github.com/lattice-go/lattice/store"
)

// ViolationType classifies what kind of rule a violation broke.
type ViolationType string

const (
	ViolationReferential ViolationType = "referential"
	ViolationConstraint  ViolationType = "constraint"
	ViolationAnomaly     ViolationType = "anomaly"
	ViolationOrphan      ViolationType = "orphan"
)

// Severity grades a violation. Only error-severity violations flip a
// report's Valid to false; warnings and infos are informational.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// OnDelete declares how a dangling reference should be repaired.
type OnDelete string

const (
	// OnDeleteCascade deletes the referencing entity.
	OnDeleteCascade OnDelete = "cascade"
	// OnDeleteSetNull nullifies the relation field (or filters dangling ids
	// out of an array relation).
	OnDeleteSetNull OnDelete = "set-null"
	// OnDeleteRestrict flags the violation but offers no mechanical repair.
	OnDeleteRestrict OnDelete = "restrict"
	// OnDeleteNoAction behaves like restrict; it exists so rule files can
	// state the intent explicitly.
	OnDeleteNoAction OnDelete = "no-action"
)

// Relation declares an expected referential-integrity rule: entities of type
// From hold, in Field, the id (or id array) of entities of type To.
type Relation struct {
	From     string   `json:"from"`
	Field    string   `json:"field"`
	To       string   `json:"to"`
	Required bool     `json:"required"`
	IsArray  bool     `json:"is_array"`
	OnDelete OnDelete `json:"on_delete,omitempty"`
}

// Constraint is a custom per-entity-type rule. Validate returns false when
// the entity violates the rule. Repair, when supplied, produces the
// mechanical fix embedded in the resulting violation; it runs at check time
// so reports stay plain data.
type Constraint struct {
	Name     string
	Entity   string
	Validate func(e store.Entity, all store.Entities) bool
	Message  string
	Severity Severity
	Repair   func(e store.Entity, all store.Entities) *RepairAction
}

// AnomalyRule is a whole-store scan contributing zero or more violations.
// See DuplicateRule, StaleRule, RequiredFieldsRule and ConsistencyRule for
// the built-in constructors.
type AnomalyRule struct {
	Name   string
	Detect func(es store.Entities) []Violation
}

// RepairAction is the mechanical fix attached to a violation. It is plain
// data so reports remain JSON-serializable.
type RepairAction struct {
	// Action is one of delete, update, nullify or create. Create is never
	// auto-applied; it is always deferred to the caller.
	Action string       `json:"action"`
	Field  string       `json:"field,omitempty"`
	Data   store.Entity `json:"data,omitempty"`
}

// Repair action names.
const (
	ActionDelete  = "delete"
	ActionUpdate  = "update"
	ActionNullify = "nullify"
	ActionCreate  = "create"
)

// Violation records one integrity finding. It is pure data and is never
// returned as an error.
type Violation struct {
	Type       ViolationType `json:"type"`
	Severity   Severity      `json:"severity"`
	EntityType string        `json:"entity_type"`
	EntityID   string        `json:"entity_id"`
	Message    string        `json:"message"`
	Field      string        `json:"field,omitempty"`
	Related    []string      `json:"related,omitempty"`
	Repair     *RepairAction `json:"repair,omitempty"`
}

// Stats summarizes a check pass.
type Stats struct {
	EntitiesChecked int  `json:"entities_checked"`
	Errors          int  `json:"errors"`
	Warnings        int  `json:"warnings"`
	Infos           int  `json:"infos"`
	Aborted         bool `json:"aborted,omitempty"`
}

// Report is the outcome of one Check. Valid is true exactly when no
// error-severity violation was found.
type Report struct {
	Valid        bool           `json:"valid"`
	Timestamp    time.Time      `json:"timestamp"`
	Duration     time.Duration  `json:"duration"`
	EntityCounts map[string]int `json:"entity_counts"`
	Violations   []Violation    `json:"violations"`
	Stats        Stats          `json:"stats"`
}

// RepairRecord documents one attempted repair.
type RepairRecord struct {
	Violation Violation `json:"violation"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// RepairResult is the outcome of a Repair pass. Entities is the repaired
// store (or the untouched input under DryRun); Remaining holds violations
// with no actionable repair or whose repair failed.
type RepairResult struct {
	Entities  store.Entities `json:"entities"`
	Repairs   []RepairRecord `json:"repairs"`
	Remaining []Violation    `json:"remaining"`
}
