// Package store defines the flat, normalized entity store: entities keyed by
// type and id, with copy-on-write operations over a caller-owned map. The
// package never retains a reference to the maps it is given; every mutating
// operation returns a fresh top-level structure.
package store

import "errors"

// ErrNotFound is returned by MustGet when the requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Entity is a flat record. It carries an id field (name configurable per
// schema, "id" by default) plus payload fields; relation fields hold ids,
// id slices or typed Refs rather than nested objects.
type Entity = map[string]any

// EntityMap holds all entities of one type, keyed by id.
type EntityMap = map[string]Entity

// Entities is the canonical normalized store: type name to EntityMap.
type Entities = map[string]EntityMap

// Ref is a typed entity reference. It is produced when normalizing
// union-valued relations, where the bare id alone cannot identify the target
// type.
type Ref struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Get returns the entity stored under typ and id.
func Get(es Entities, typ, id string) (Entity, bool) {
	em, ok := es[typ]
	if !ok {
		return nil, false
	}
	e, ok := em[id]
	return e, ok
}

// MustGet is Get with an error instead of a bool, for callers that treat
// absence as a failure.
func MustGet(es Entities, typ, id string) (Entity, error) {
	e, ok := Get(es, typ, id)
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Merge combines two stores copy-on-write: the result shares no top-level
// structure with either input. Entities present in both are merged shallowly,
// with fields from b winning.
func Merge(a, b Entities) Entities {
	out := make(Entities, len(a)+len(b))
	for typ, em := range a {
		outMap := make(EntityMap, len(em))
		for id, e := range em {
			outMap[id] = shallowCopy(e)
		}
		out[typ] = outMap
	}
	for typ, em := range b {
		outMap, ok := out[typ]
		if !ok {
			outMap = make(EntityMap, len(em))
			out[typ] = outMap
		}
		for id, e := range em {
			merged, ok := outMap[id]
			if !ok {
				merged = make(Entity, len(e))
			}
			for k, v := range e {
				merged[k] = v
			}
			outMap[id] = merged
		}
	}
	return out
}

// Update returns a new store with fields shallow-merged into the entity at
// typ and id, creating the entity when absent.
func Update(es Entities, typ, id string, fields Entity) Entities {
	return Merge(es, Entities{typ: {id: fields}})
}

// Remove returns a new store without the entity at typ and id. Removing the
// last entity of a type removes the type key as well.
func Remove(es Entities, typ, id string) Entities {
	out := make(Entities, len(es))
	for t, em := range es {
		if t != typ {
			out[t] = em
			continue
		}
		outMap := make(EntityMap, len(em))
		for eid, e := range em {
			if eid != id {
				outMap[eid] = e
			}
		}
		if len(outMap) > 0 {
			out[t] = outMap
		}
	}
	return out
}

// Clone deep-copies the store, including nested maps and slices inside
// entity payloads. The result shares no mutable structure with the input.
func Clone(es Entities) Entities {
	out := make(Entities, len(es))
	for typ, em := range es {
		outMap := make(EntityMap, len(em))
		for id, e := range em {
			outMap[id] = cloneValue(e).(Entity)
		}
		out[typ] = outMap
	}
	return out
}

// Counts returns the number of entities per type.
func Counts(es Entities) map[string]int {
	counts := make(map[string]int, len(es))
	for typ, em := range es {
		counts[typ] = len(em)
	}
	return counts
}

// Total returns the total number of entities across all types.
func Total(es Entities) int {
	total := 0
	for _, em := range es {
		total += len(em)
	}
	return total
}

func shallowCopy(e Entity) Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
