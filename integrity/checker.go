package integrity

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lattice-go/lattice/internal/metrics"
	"github.com/lattice-go/lattice/schema"
	"github.com/lattice-go/lattice/store"
)

// Config configures a Checker.
type Config struct {
	// IDField is the entity id field name; defaults to schema.DefaultIDField.
	IDField string
	// Relations are the referential-integrity rules to enforce.
	Relations []Relation
	// Constraints are custom per-entity-type rules.
	Constraints []Constraint
	// AnomalyRules are whole-store scans.
	AnomalyRules []AnomalyRule
	// DetectOrphans enables flagging relation-target entities that nothing
	// references.
	DetectOrphans bool
	// FailFast aborts remaining scanning as soon as an error-severity
	// violation appears, bounding cost on badly corrupted stores.
	FailFast bool
	// Logger receives structured check/repair logs; nil uses slog.Default.
	Logger *slog.Logger
}

// Checker validates a store against its configured rules. A Checker reads
// the store it is handed and never retains or mutates it.
type Checker struct {
	cfg    Config
	logger *slog.Logger
}

// NewChecker creates a Checker from cfg.
func NewChecker(cfg Config) *Checker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IDField == "" {
		cfg.IDField = schema.DefaultIDField
	}
	return &Checker{cfg: cfg, logger: logger}
}

// AddRelation appends a referential rule.
func (c *Checker) AddRelation(r Relation) { c.cfg.Relations = append(c.cfg.Relations, r) }

// AddConstraint appends a custom constraint.
func (c *Checker) AddConstraint(ct Constraint) { c.cfg.Constraints = append(c.cfg.Constraints, ct) }

// AddAnomalyRule appends a whole-store anomaly scan.
func (c *Checker) AddAnomalyRule(r AnomalyRule) { c.cfg.AnomalyRules = append(c.cfg.AnomalyRules, r) }

// Config returns a copy of the checker's configuration. The rule slices are
// copied so callers cannot mutate the checker through the result.
func (c *Checker) Config() Config {
	cfg := c.cfg
	cfg.Relations = append([]Relation(nil), c.cfg.Relations...)
	cfg.Constraints = append([]Constraint(nil), c.cfg.Constraints...)
	cfg.AnomalyRules = append([]AnomalyRule(nil), c.cfg.AnomalyRules...)
	return cfg
}

// Check runs the full validation pass: referential integrity and constraints
// per entity, then orphan detection and anomaly rules store-wide. Data
// problems never fail the call; they surface as violations. A panicking
// constraint or anomaly callback is deliberately not recovered here, so a
// buggy rule fails loudly during development.
func (c *Checker) Check(es store.Entities) Report {
	start := time.Now()
	scan := &scanState{failFast: c.cfg.FailFast}

	c.scanEntities(es, scan)
	if !scan.aborted && c.cfg.DetectOrphans {
		c.scanOrphans(es, scan)
	}
	if !scan.aborted {
		c.scanAnomalies(es, scan)
	}

	report := c.buildReport(es, scan, start)
	metrics.Inc(metrics.CheckTotal)
	metrics.Add(metrics.ViolationTotal, len(report.Violations))
	c.logger.Debug("integrity check complete",
		"valid", report.Valid,
		"violations", len(report.Violations),
		"entities", report.Stats.EntitiesChecked,
		"duration", report.Duration)
	return report
}

// CheckEntity validates a single entity: referential rules and constraints
// only, no store-wide scans.
func (c *Checker) CheckEntity(es store.Entities, typ, id string) []Violation {
	entity, ok := store.Get(es, typ, id)
	if !ok {
		return nil
	}
	scan := &scanState{}
	c.checkOne(es, typ, id, entity, scan)
	return scan.violations
}

type scanState struct {
	violations []Violation
	checked    int
	failFast   bool
	aborted    bool
}

// add records a violation; with failFast set, the first error-severity
// violation aborts the rest of the scan.
func (s *scanState) add(v Violation) bool {
	s.violations = append(s.violations, v)
	if s.failFast && v.Severity == SeverityError {
		s.aborted = true
		return false
	}
	return true
}

func (c *Checker) scanEntities(es store.Entities, scan *scanState) {
	for _, typ := range store.SortedTypes(es) {
		em := es[typ]
		for _, id := range store.SortedIDs(em) {
			scan.checked++
			c.checkOne(es, typ, id, em[id], scan)
			if scan.aborted {
				return
			}
		}
	}
}

func (c *Checker) checkOne(es store.Entities, typ, id string, entity store.Entity, scan *scanState) {
	for i := range c.cfg.Relations {
		rel := &c.cfg.Relations[i]
		if rel.From != typ {
			continue
		}
		if !c.checkRelation(es, typ, id, entity, rel, scan) {
			return
		}
	}
	for i := range c.cfg.Constraints {
		ct := &c.cfg.Constraints[i]
		if ct.Entity != typ {
			continue
		}
		if !c.checkConstraint(es, typ, id, entity, ct, scan) {
			return
		}
	}
}

// checkRelation validates one relation field on one entity. It reports false
// when a fail-fast abort fired.
func (c *Checker) checkRelation(es store.Entities, typ, id string, entity store.Entity, rel *Relation, scan *scanState) bool {
	value, present := entity[rel.Field]
	if !present || value == nil {
		if !rel.Required {
			return true
		}
		return scan.add(Violation{
			Type:       ViolationReferential,
			Severity:   SeverityError,
			EntityType: typ,
			EntityID:   id,
			Field:      rel.Field,
			Message:    fmt.Sprintf("required relation %s.%s -> %s is not set", typ, rel.Field, rel.To),
			Repair:     rel.missingRepair(),
		})
	}

	if rel.IsArray {
		return c.checkArrayRelation(es, typ, id, value, rel, scan)
	}

	refID, ok := relationID(value)
	if !ok {
		return scan.add(Violation{
			Type:       ViolationReferential,
			Severity:   SeverityError,
			EntityType: typ,
			EntityID:   id,
			Field:      rel.Field,
			Message:    fmt.Sprintf("relation %s.%s holds a non-id value (%T)", typ, rel.Field, value),
			Repair:     rel.danglingRepair(),
		})
	}
	if _, exists := store.Get(es, rel.To, refID); exists {
		return true
	}

	severity := SeverityWarning
	if rel.Required {
		severity = SeverityError
	}
	return scan.add(Violation{
		Type:       ViolationReferential,
		Severity:   severity,
		EntityType: typ,
		EntityID:   id,
		Field:      rel.Field,
		Related:    []string{rel.To + ":" + refID},
		Message:    fmt.Sprintf("relation %s.%s references missing %s %q", typ, rel.Field, rel.To, refID),
		Repair:     rel.danglingRepair(),
	})
}

// checkArrayRelation emits one violation per dangling id inside the array.
func (c *Checker) checkArrayRelation(es store.Entities, typ, id string, value any, rel *Relation, scan *scanState) bool {
	ids, ok := relationIDs(value)
	if !ok {
		return scan.add(Violation{
			Type:       ViolationReferential,
			Severity:   SeverityError,
			EntityType: typ,
			EntityID:   id,
			Field:      rel.Field,
			Message:    fmt.Sprintf("array relation %s.%s holds a non-array value (%T)", typ, rel.Field, value),
		})
	}

	var live []any
	var dangling []string
	for _, refID := range ids {
		if _, exists := store.Get(es, rel.To, refID); exists {
			live = append(live, refID)
		} else {
			dangling = append(dangling, refID)
		}
	}
	if len(dangling) == 0 {
		return true
	}

	severity := SeverityWarning
	if rel.Required {
		severity = SeverityError
	}
	for _, refID := range dangling {
		v := Violation{
			Type:       ViolationReferential,
			Severity:   severity,
			EntityType: typ,
			EntityID:   id,
			Field:      rel.Field,
			Related:    []string{rel.To + ":" + refID},
			Message:    fmt.Sprintf("array relation %s.%s references missing %s %q", typ, rel.Field, rel.To, refID),
			Repair:     rel.arrayRepair(live),
		}
		if !scan.add(v) {
			return false
		}
	}
	return true
}

func (c *Checker) checkConstraint(es store.Entities, typ, id string, entity store.Entity, ct *Constraint, scan *scanState) bool {
	if ct.Validate == nil || ct.Validate(entity, es) {
		return true
	}
	severity := ct.Severity
	if severity == "" {
		severity = SeverityError
	}
	message := ct.Message
	if message == "" {
		message = fmt.Sprintf("constraint %q failed", ct.Name)
	}
	var repair *RepairAction
	if ct.Repair != nil {
		repair = ct.Repair(entity, es)
	}
	return scan.add(Violation{
		Type:       ViolationConstraint,
		Severity:   severity,
		EntityType: typ,
		EntityID:   id,
		Message:    message,
		Related:    []string{ct.Name},
		Repair:     repair,
	})
}

// scanOrphans flags entities of relation-target types that no live relation
// actually references.
func (c *Checker) scanOrphans(es store.Entities, scan *scanState) {
	targetTypes := map[string]bool{}
	for i := range c.cfg.Relations {
		targetTypes[c.cfg.Relations[i].To] = true
	}
	if len(targetTypes) == 0 {
		return
	}

	referenced := map[string]bool{}
	for i := range c.cfg.Relations {
		rel := &c.cfg.Relations[i]
		for _, em := range es[rel.From] {
			value, present := em[rel.Field]
			if !present || value == nil {
				continue
			}
			if rel.IsArray {
				if ids, ok := relationIDs(value); ok {
					for _, refID := range ids {
						referenced[rel.To+":"+refID] = true
					}
				}
				continue
			}
			if refID, ok := relationID(value); ok {
				referenced[rel.To+":"+refID] = true
			}
		}
	}

	for _, typ := range store.SortedTypes(es) {
		if !targetTypes[typ] {
			continue
		}
		for _, id := range store.SortedIDs(es[typ]) {
			if referenced[typ+":"+id] {
				continue
			}
			v := Violation{
				Type:       ViolationOrphan,
				Severity:   SeverityWarning,
				EntityType: typ,
				EntityID:   id,
				Message:    fmt.Sprintf("%s %q is a relation target but nothing references it", typ, id),
				Repair:     &RepairAction{Action: ActionDelete},
			}
			if !scan.add(v) {
				return
			}
		}
	}
}

func (c *Checker) scanAnomalies(es store.Entities, scan *scanState) {
	for i := range c.cfg.AnomalyRules {
		rule := &c.cfg.AnomalyRules[i]
		if rule.Detect == nil {
			continue
		}
		for _, v := range rule.Detect(es) {
			if v.Type == "" {
				v.Type = ViolationAnomaly
			}
			if v.Severity == "" {
				v.Severity = SeverityWarning
			}
			if !scan.add(v) {
				return
			}
		}
	}
}

func (c *Checker) buildReport(es store.Entities, scan *scanState, start time.Time) Report {
	stats := Stats{EntitiesChecked: scan.checked, Aborted: scan.aborted}
	valid := true
	for i := range scan.violations {
		switch scan.violations[i].Severity {
		case SeverityError:
			stats.Errors++
			valid = false
		case SeverityWarning:
			stats.Warnings++
		default:
			stats.Infos++
		}
	}
	violations := scan.violations
	if violations == nil {
		violations = []Violation{}
	}
	return Report{
		Valid:        valid,
		Timestamp:    start.UTC(),
		Duration:     time.Since(start),
		EntityCounts: store.Counts(es),
		Violations:   violations,
		Stats:        stats,
	}
}

// missingRepair is the fix for a required relation field that is absent: the
// referencing entity cannot stand without it, so it is deleted.
func (r *Relation) missingRepair() *RepairAction {
	switch r.OnDelete {
	case OnDeleteRestrict, OnDeleteNoAction:
		return nil
	default:
		return &RepairAction{Action: ActionDelete}
	}
}

// danglingRepair maps the relation's on-delete policy to the fix for a
// dangling singular reference.
func (r *Relation) danglingRepair() *RepairAction {
	switch r.OnDelete {
	case OnDeleteCascade:
		return &RepairAction{Action: ActionDelete}
	case OnDeleteSetNull:
		return &RepairAction{Action: ActionNullify, Field: r.Field}
	case OnDeleteRestrict, OnDeleteNoAction:
		return nil
	default:
		if r.Required {
			return &RepairAction{Action: ActionDelete}
		}
		return &RepairAction{Action: ActionNullify, Field: r.Field}
	}
}

// arrayRepair rewrites an array relation to only its live ids.
func (r *Relation) arrayRepair(live []any) *RepairAction {
	switch r.OnDelete {
	case OnDeleteCascade:
		return &RepairAction{Action: ActionDelete}
	case OnDeleteRestrict, OnDeleteNoAction:
		return nil
	default:
		return &RepairAction{
			Action: ActionUpdate,
			Field:  r.Field,
			Data:   store.Entity{r.Field: live},
		}
	}
}

// relationID extracts a reference id from a singular relation value: a bare
// string or a typed union Ref (either form).
func relationID(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, v != ""
	case store.Ref:
		return v.ID, v.ID != ""
	case map[string]any:
		id, _ := v["id"].(string)
		return id, id != ""
	default:
		return "", false
	}
}

func relationIDs(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			id, ok := relationID(item)
			if !ok {
				return nil, false
			}
			ids = append(ids, id)
		}
		return ids, true
	default:
		return nil, false
	}
}
