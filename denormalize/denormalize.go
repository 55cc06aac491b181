// Package denormalize reconstructs nested views from the flat entity store.
// It is the inverse of package normalize, with two deliberate asymmetries:
// it never fails on missing data (an absent referenced entity resolves to its
// bare id) and it bounds recursion through cycle and depth controls.
package denormalize

import (
	"github.com/lattice-go/lattice/schema"
	"github.com/lattice-go/lattice/store"
)

// CycleBehavior selects what a revisited entity node resolves to.
type CycleBehavior string

const (
	// CycleSkip resolves a revisited entity to nil.
	CycleSkip CycleBehavior = "skip"
	// CycleIDOnly resolves a revisited entity to its bare id. Default.
	CycleIDOnly CycleBehavior = "id-only"
	// CycleShallow resolves a revisited entity to its own fields without
	// recursing into relations.
	CycleShallow CycleBehavior = "shallow"
)

// Options tunes a denormalization pass.
type Options struct {
	// MaxDepth bounds entity nesting; 0 means unlimited. Past the limit an
	// entity node degrades to its bare id.
	MaxDepth int
	// IncludeFields restricts entity output to the listed fields (the id
	// field is always kept). Empty means all fields.
	IncludeFields []string
	// ExcludeFields drops the listed fields from entity output. Exclude wins
	// over include.
	ExcludeFields []string
	// NoMemo disables the per-call memoization cache. Memoization is on by
	// default so repeated references to one entity at the same depth return
	// the same value, reference identity included.
	NoMemo bool
	// OnCycle selects the cycle behavior; empty means CycleIDOnly.
	OnCycle CycleBehavior
}

func (o *Options) cycle() CycleBehavior {
	if o == nil || o.OnCycle == "" {
		return CycleIDOnly
	}
	return o.OnCycle
}

type memoKey struct {
	typ   string
	id    string
	depth int
}

// Denormalize resolves input (typically a normalized skeleton of ids) into a
// nested structure according to s, reading entities from es. It never fails:
// data the store cannot resolve stays in its normalized form.
func Denormalize(input any, s schema.Schema, es store.Entities, opts *Options) any {
	if opts == nil {
		opts = &Options{}
	}
	d := &denormalizer{entities: es, opts: opts}
	if !opts.NoMemo {
		d.memo = map[memoKey]any{}
	}
	return d.walk(input, s, map[string]bool{}, 0)
}

// Shallow resolves the entity itself but leaves its relations as bare ids,
// a common view-layer shortcut.
func Shallow(input any, s schema.Schema, es store.Entities) any {
	return Denormalize(input, s, es, &Options{MaxDepth: 1})
}

// Select resolves with a field whitelist, for views that need a projection
// rather than the full entity.
func Select(input any, s schema.Schema, es store.Entities, fields ...string) any {
	return Denormalize(input, s, es, &Options{IncludeFields: fields})
}

type denormalizer struct {
	entities store.Entities
	opts     *Options
	memo     map[memoKey]any
}

// walk dispatches on the schema variant. visited carries "type:id" keys down
// the recursion and is copied per entity branch so sibling subtrees do not
// see each other's ancestors.
func (d *denormalizer) walk(input any, s schema.Schema, visited map[string]bool, depth int) any {
	if input == nil || s == nil {
		return input
	}
	switch node := s.(type) {
	case *schema.Value:
		return input
	case *schema.Entity:
		return d.walkEntity(input, node, node.Name, visited, depth)
	case *schema.Array:
		return d.walkArray(input, node, visited, depth)
	case *schema.Object:
		return d.walkObject(input, node, visited, depth)
	case *schema.Union:
		return d.walkUnion(input, node, visited, depth)
	default:
		return input
	}
}

func (d *denormalizer) walkEntity(input any, node *schema.Entity, typ string, visited map[string]bool, depth int) any {
	id, ok := entityID(input, node)
	if !ok {
		// Not an id we can resolve; leave the value as-is.
		return input
	}

	key := typ + ":" + id
	entity, found := store.Get(d.entities, typ, id)
	if !found {
		return id
	}
	if visited[key] {
		switch d.opts.cycle() {
		case CycleSkip:
			return nil
		case CycleShallow:
			return d.project(entity, node, nil, true, 0)
		default:
			return id
		}
	}
	if d.opts.MaxDepth > 0 && depth >= d.opts.MaxDepth {
		return id
	}

	mk := memoKey{typ: typ, id: id, depth: depth}
	if d.memo != nil {
		if cached, hit := d.memo[mk]; hit {
			return cached
		}
	}

	branch := make(map[string]bool, len(visited)+1)
	for k := range visited {
		branch[k] = true
	}
	branch[key] = true

	out := d.project(entity, node, branch, false, depth)
	if d.memo != nil {
		d.memo[mk] = out
	}
	return out
}

// project builds the output map for one entity, resolving relation fields
// unless shallow is set, and applying the include/exclude field filters.
func (d *denormalizer) project(entity store.Entity, node *schema.Entity, visited map[string]bool, shallow bool, depth int) map[string]any {
	out := make(map[string]any, len(entity))
	for field, value := range entity {
		if !d.wantField(field, node.ID()) {
			continue
		}
		childSchema, isRelation := node.Relations[field]
		if !isRelation || shallow {
			out[field] = value
			continue
		}
		out[field] = d.walk(value, childSchema, visited, depth+1)
	}
	return out
}

func (d *denormalizer) wantField(field, idField string) bool {
	for _, f := range d.opts.ExcludeFields {
		if f == field {
			return false
		}
	}
	if len(d.opts.IncludeFields) == 0 || field == idField {
		return true
	}
	for _, f := range d.opts.IncludeFields {
		if f == field {
			return true
		}
	}
	return false
}

func (d *denormalizer) walkArray(input any, node *schema.Array, visited map[string]bool, depth int) any {
	items, ok := input.([]any)
	if !ok {
		return input
	}
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = d.walk(item, node.Elem, visited, depth)
	}
	return out
}

func (d *denormalizer) walkObject(input any, node *schema.Object, visited map[string]bool, depth int) any {
	obj, ok := input.(map[string]any)
	if !ok {
		return input
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		childSchema, declared := node.Fields[k]
		if !declared {
			out[k] = v
			continue
		}
		out[k] = d.walk(v, childSchema, visited, depth)
	}
	return out
}

// walkUnion resolves the member through the Ref's type tag. Values that are
// not refs (or whose tag is unknown) pass through unresolved rather than
// failing.
func (d *denormalizer) walkUnion(input any, node *schema.Union, visited map[string]bool, depth int) any {
	ref, ok := asRef(input)
	if !ok {
		return input
	}
	member, ok := node.Members[ref.Type].(*schema.Entity)
	if !ok {
		return input
	}
	return d.walkEntity(ref.ID, member, member.Name, visited, depth)
}

// entityID extracts the id a normalized entity value carries: a bare id
// string, a typed Ref, or an already-denormalized map holding the id field.
func entityID(input any, node *schema.Entity) (string, bool) {
	switch v := input.(type) {
	case string:
		return v, v != ""
	case store.Ref:
		return v.ID, v.ID != ""
	case map[string]any:
		id, ok := v[node.ID()].(string)
		return id, ok && id != ""
	default:
		return "", false
	}
}

// asRef recognizes a union reference either as the typed Ref value or as its
// JSON round-tripped map form.
func asRef(input any) (store.Ref, bool) {
	switch v := input.(type) {
	case store.Ref:
		return v, v.ID != "" && v.Type != ""
	case map[string]any:
		id, _ := v["id"].(string)
		typ, _ := v["type"].(string)
		if id != "" && typ != "" && len(v) == 2 {
			return store.Ref{ID: id, Type: typ}, true
		}
	}
	return store.Ref{}, false
}
