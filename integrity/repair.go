package integrity

import (
	"fmt"

	"github.com/lattice-go/lattice/internal/metrics"
	"github.com/lattice-go/lattice/store"
)

// Handler intercepts repairs for one violation type before the built-in
// actions run. It mutates work in place and returns true when it handled the
// violation; returning an error records the repair as failed.
type Handler func(v Violation, work store.Entities) (handled bool, err error)

// RepairOptions tunes a Repair pass.
type RepairOptions struct {
	// DryRun computes every repair decision without mutating; the result
	// carries the original store untouched.
	DryRun bool
	// ErrorsOnly restricts repair to error-severity violations; everything
	// else lands in Remaining.
	ErrorsOnly bool
	// Handlers intercept violations by type before built-in actions apply.
	Handlers map[ViolationType]Handler
}

// Repair applies each violation's repair action to a deep clone of the
// store. Per-violation failures never abort the pass: a failed or
// unsupported repair lands in Remaining and the rest proceed. Create actions
// are never auto-applied. The canonical store is untouched either way; the
// caller writes Result.Entities back when satisfied.
func (c *Checker) Repair(es store.Entities, report Report, opts RepairOptions) RepairResult {
	work := store.Clone(es)
	result := RepairResult{Repairs: []RepairRecord{}, Remaining: []Violation{}}

	for _, v := range report.Violations {
		if opts.ErrorsOnly && v.Severity != SeverityError {
			result.Remaining = append(result.Remaining, v)
			continue
		}

		if handler, ok := opts.Handlers[v.Type]; ok && handler != nil {
			handled, err := handler(v, work)
			if err != nil {
				c.logger.Warn("repair handler failed",
					"type", v.Type, "entity", v.EntityType+":"+v.EntityID, "error", err)
				result.Repairs = append(result.Repairs, RepairRecord{
					Violation: v, Action: "handler", Success: false, Error: err.Error(),
				})
				result.Remaining = append(result.Remaining, v)
				continue
			}
			if handled {
				result.Repairs = append(result.Repairs, RepairRecord{
					Violation: v, Action: "handler", Success: true,
				})
				continue
			}
		}

		if v.Repair == nil || v.Repair.Action == ActionCreate {
			result.Remaining = append(result.Remaining, v)
			continue
		}

		if err := applyAction(work, v); err != nil {
			c.logger.Warn("repair action failed",
				"action", v.Repair.Action, "entity", v.EntityType+":"+v.EntityID, "error", err)
			result.Repairs = append(result.Repairs, RepairRecord{
				Violation: v, Action: v.Repair.Action, Success: false, Error: err.Error(),
			})
			result.Remaining = append(result.Remaining, v)
			continue
		}
		result.Repairs = append(result.Repairs, RepairRecord{
			Violation: v, Action: v.Repair.Action, Success: true,
		})
	}

	if opts.DryRun {
		result.Entities = es
	} else {
		result.Entities = work
	}

	applied := 0
	for i := range result.Repairs {
		if result.Repairs[i].Success {
			applied++
		}
	}
	metrics.Add(metrics.RepairTotal, applied)
	c.logger.Info("repair pass complete",
		"applied", applied,
		"remaining", len(result.Remaining),
		"dry_run", opts.DryRun)
	return result
}

// applyAction executes one built-in repair action against the working store.
func applyAction(work store.Entities, v Violation) error {
	em, ok := work[v.EntityType]
	entity, exists := em[v.EntityID]

	switch v.Repair.Action {
	case ActionDelete:
		if !ok || !exists {
			// Already gone, e.g. deleted by an earlier cascade.
			return nil
		}
		delete(em, v.EntityID)
		if len(em) == 0 {
			delete(work, v.EntityType)
		}
		return nil

	case ActionUpdate:
		if !exists {
			return fmt.Errorf("cannot update missing %s %q", v.EntityType, v.EntityID)
		}
		for k, value := range v.Repair.Data {
			entity[k] = value
		}
		return nil

	case ActionNullify:
		if !exists {
			return fmt.Errorf("cannot nullify field on missing %s %q", v.EntityType, v.EntityID)
		}
		if v.Repair.Field == "" {
			return fmt.Errorf("nullify repair for %s %q names no field", v.EntityType, v.EntityID)
		}
		entity[v.Repair.Field] = nil
		return nil

	default:
		return fmt.Errorf("unsupported repair action %q", v.Repair.Action)
	}
}
