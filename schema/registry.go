package schema

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

// ErrDuplicateSchema is returned by Register when the name is already taken
// and overwrite is false.
var ErrDuplicateSchema = errors.New("schema name already registered")

// ErrSchemaNotFound is returned by Get when no schema is registered under the
// requested name.
var ErrSchemaNotFound = errors.New("schema not registered")

// Registry holds named schemas. It is an explicitly constructed, caller-owned
// instance; independent stores should each own their own registry so tests
// and multiple graphs stay isolated.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: map[string]Schema{}}
}

// Register stores s under name. Registering an already-taken name fails with
// ErrDuplicateSchema unless overwrite is set.
func (r *Registry) Register(name string, s Schema, overwrite bool) error {
	if name == "" {
		return fmt.Errorf("registering schema: name must not be empty")
	}
	if s == nil {
		return fmt.Errorf("registering schema %q: schema must not be nil", name)
	}
	if _, exists := r.schemas[name]; exists && !overwrite {
		return fmt.Errorf("registering schema %q: %w", name, ErrDuplicateSchema)
	}
	r.schemas[name] = s
	return nil
}

// Get returns the schema registered under name.
func (r *Registry) Get(name string) (Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("getting schema %q: %w", name, ErrSchemaNotFound)
	}
	return s, nil
}

// Names returns the registered schema names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate walks every registered schema and aggregates all structural
// findings into a single error: relation targets whose entity name is not
// registered, and union members that are not entity schemas. A nil return
// means every reference resolves.
func (r *Registry) Validate() error {
	registered := map[string]bool{}
	for _, s := range r.schemas {
		if e, ok := s.(*Entity); ok {
			registered[e.Name] = true
		}
	}

	var err error
	for _, name := range r.Names() {
		seen := map[Schema]bool{}
		err = multierr.Append(err, r.validateNode(name, r.schemas[name], registered, seen))
	}
	return err
}

func (r *Registry) validateNode(root string, s Schema, registered map[string]bool, seen map[Schema]bool) error {
	if s == nil || seen[s] {
		return nil
	}
	seen[s] = true

	var err error
	switch node := s.(type) {
	case *Entity:
		for _, field := range sortedFields(node.Relations) {
			child := node.Relations[field]
			if target, ok := child.(*Entity); ok && !registered[target.Name] {
				err = multierr.Append(err, fmt.Errorf(
					"schema %q: relation %s.%s targets unregistered entity %q",
					root, node.Name, field, target.Name))
			}
			err = multierr.Append(err, r.validateNode(root, child, registered, seen))
		}
	case *Array:
		err = r.validateNode(root, node.Elem, registered, seen)
	case *Object:
		for _, field := range sortedFields(node.Fields) {
			err = multierr.Append(err, r.validateNode(root, node.Fields[field], registered, seen))
		}
	case *Union:
		for _, tag := range sortedFields(node.Members) {
			member := node.Members[tag]
			if _, ok := member.(*Entity); !ok {
				err = multierr.Append(err, fmt.Errorf(
					"schema %q: union member %q is not an entity schema", root, tag))
				continue
			}
			err = multierr.Append(err, r.validateNode(root, member, registered, seen))
		}
	}
	return err
}

// Unreachable returns the names of registered entity schemas that no relation
// of any other registered schema points at. This is a diagnostic, not an
// error: root types legitimately have no incoming relation.
func (r *Registry) Unreachable() []string {
	targets := map[string]bool{}
	for _, s := range r.schemas {
		collectTargets(s, targets, map[Schema]bool{}, true)
	}

	var names []string
	for _, name := range r.Names() {
		e, ok := r.schemas[name].(*Entity)
		if ok && !targets[e.Name] {
			names = append(names, name)
		}
	}
	return names
}

// collectTargets records the names of entity schemas reachable through at
// least one relation edge. The top-level registered node itself is not a
// target; only nodes reached through a relation count.
func collectTargets(s Schema, targets map[string]bool, seen map[Schema]bool, root bool) {
	if s == nil {
		return
	}
	if e, ok := s.(*Entity); ok && !root {
		targets[e.Name] = true
	}
	if seen[s] {
		return
	}
	seen[s] = true

	switch node := s.(type) {
	case *Entity:
		for _, child := range node.Relations {
			collectTargets(child, targets, seen, false)
		}
	case *Array:
		collectTargets(node.Elem, targets, seen, root)
	case *Object:
		for _, child := range node.Fields {
			collectTargets(child, targets, seen, false)
		}
	case *Union:
		for _, member := range node.Members {
			collectTargets(member, targets, seen, false)
		}
	}
}

func sortedFields[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
