// Package normalize flattens nested application data into the flat entity
// store, guided by a schema tree. Normalization is pure with respect to the
// caller: it returns a fresh entity map and never mutates its input or any
// canonical store.
package normalize

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/lattice-go/lattice/internal/metrics"
	"github.com/lattice-go/lattice/schema"
	"github.com/lattice-go/lattice/store"
)

// ErrMissingID is returned when an entity input lacks its id field.
var ErrMissingID = errors.New("entity input is missing its id field")

// ErrShapeMismatch is returned when the input's shape does not match the
// schema node (e.g. a scalar where the schema expects an object).
var ErrShapeMismatch = errors.New("input shape does not match schema")

// ErrUnresolvedUnion is returned when a union input carries no usable
// discriminant and the union has no resolver.
var ErrUnresolvedUnion = errors.New("cannot resolve union member")

// Result is the outcome of a normalization pass. Value is the normalized
// skeleton (ids and id structures in place of nested entities); Entities
// holds every entity record extracted along the way.
type Result struct {
	Value    any
	Entities store.Entities
}

// Normalize flattens input according to s. Structural problems (missing id,
// shape mismatch, unresolved union) fail the affected subtree synchronously;
// there is no partial-success mode. The caller merges Result.Entities into
// its canonical store with store.Merge.
func Normalize(input any, s schema.Schema) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("normalize: schema must not be nil")
	}
	n := &normalizer{entities: store.Entities{}}
	value, err := n.walk(input, s)
	if err != nil {
		return Result{}, err
	}
	metrics.Inc(metrics.NormalizeTotal)
	return Result{Value: value, Entities: n.entities}, nil
}

type normalizer struct {
	entities store.Entities
}

func (n *normalizer) walk(input any, s schema.Schema) (any, error) {
	switch node := s.(type) {
	case *schema.Value:
		return input, nil
	case *schema.Entity:
		return n.walkEntity(input, node)
	case *schema.Array:
		return n.walkArray(input, node)
	case *schema.Object:
		return n.walkObject(input, node)
	case *schema.Union:
		return n.walkUnion(input, node)
	default:
		return nil, fmt.Errorf("normalize: unsupported schema kind %q", s.Kind())
	}
}

// walkEntity extracts the record, replaces relation fields with their
// normalized values, merges the record into the accumulated entities and
// returns the bare id.
func (n *normalizer) walkEntity(input any, node *schema.Entity) (any, error) {
	obj, ok := input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("normalize %s: expected object, got %T: %w", node.Name, input, ErrShapeMismatch)
	}

	id, ok := idString(obj[node.ID()])
	if !ok {
		return nil, fmt.Errorf("normalize %s: field %q: %w", node.Name, node.ID(), ErrMissingID)
	}

	record := make(store.Entity, len(obj))
	for k, v := range obj {
		record[k] = v
	}
	for field, childSchema := range node.Relations {
		raw, present := obj[field]
		if !present || raw == nil {
			continue
		}
		normalized, err := n.walk(raw, childSchema)
		if err != nil {
			return nil, fmt.Errorf("normalize %s.%s: %w", node.Name, field, err)
		}
		record[field] = normalized
	}

	n.merge(node.Name, id, record)
	return id, nil
}

func (n *normalizer) walkArray(input any, node *schema.Array) (any, error) {
	items, ok := input.([]any)
	if !ok {
		return nil, fmt.Errorf("normalize: expected array, got %T: %w", input, ErrShapeMismatch)
	}
	out := make([]any, len(items))
	for i, item := range items {
		value, err := n.walk(item, node.Elem)
		if err != nil {
			return nil, fmt.Errorf("normalize [%d]: %w", i, err)
		}
		out[i] = value
	}
	return out, nil
}

func (n *normalizer) walkObject(input any, node *schema.Object) (any, error) {
	obj, ok := input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("normalize: expected object, got %T: %w", input, ErrShapeMismatch)
	}
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		childSchema, declared := node.Fields[k]
		if !declared {
			out[k] = v
			continue
		}
		value, err := n.walk(v, childSchema)
		if err != nil {
			return nil, fmt.Errorf("normalize .%s: %w", k, err)
		}
		out[k] = value
	}
	return out, nil
}

// walkUnion resolves the member entity type through the union's explicit
// discriminant field or resolver callback, then normalizes the input as that
// entity. The normalized value is a typed Ref so denormalization can find
// the member again without probing.
func (n *normalizer) walkUnion(input any, node *schema.Union) (any, error) {
	obj, ok := input.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("normalize union: expected object, got %T: %w", input, ErrShapeMismatch)
	}

	tag, ok := resolveTag(obj, node)
	if !ok {
		return nil, fmt.Errorf("normalize union: %w", ErrUnresolvedUnion)
	}
	member, ok := node.Members[tag]
	if !ok {
		return nil, fmt.Errorf("normalize union: no member for tag %q: %w", tag, ErrUnresolvedUnion)
	}
	entitySchema, ok := member.(*schema.Entity)
	if !ok {
		return nil, fmt.Errorf("normalize union: member %q is not an entity schema: %w", tag, ErrShapeMismatch)
	}

	id, err := n.walkEntity(obj, entitySchema)
	if err != nil {
		return nil, err
	}
	return store.Ref{ID: id.(string), Type: tag}, nil
}

func resolveTag(obj map[string]any, node *schema.Union) (string, bool) {
	if node.Resolve != nil {
		return node.Resolve(obj)
	}
	if node.Discriminant == "" {
		return "", false
	}
	tag, ok := obj[node.Discriminant].(string)
	return tag, ok && tag != ""
}

// merge folds a record into the accumulated entities, shallow-merging over
// any prior record with the same id so repeated partial payloads accumulate
// field by field, last write winning.
func (n *normalizer) merge(typ, id string, record store.Entity) {
	em, ok := n.entities[typ]
	if !ok {
		em = store.EntityMap{}
		n.entities[typ] = em
	}
	existing, ok := em[id]
	if !ok {
		em[id] = record
		return
	}
	for k, v := range record {
		existing[k] = v
	}
}

// idString coerces an id value to its canonical string form. Numeric ids are
// accepted because JSON decoding produces float64.
func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	default:
		return "", false
	}
}
