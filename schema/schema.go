// Package schema defines the schema tree used to describe how nested
// application data maps onto the flat, normalized entity store. A schema is
// composed from five node kinds: entity, array, object, union and value.
package schema

// Kind identifies the variant of a schema node.
type Kind string

const (
	KindEntity Kind = "entity"
	KindArray  Kind = "array"
	KindObject Kind = "object"
	KindUnion  Kind = "union"
	KindValue  Kind = "value"
)

// DefaultIDField is the field that identifies an entity unless the entity
// schema overrides it.
const DefaultIDField = "id"

// Schema is a node in a schema tree.
type Schema interface {
	Kind() Kind
}

// Entity describes a uniquely identified record stored flat under Name.
// Relations maps field names to the schema governing the nested value held
// in that field; fields not listed are treated as plain payload.
type Entity struct {
	Name      string
	IDField   string
	Relations map[string]Schema
}

// Kind implements Schema.
func (*Entity) Kind() Kind { return KindEntity }

// ID returns the field name identifying entities of this type.
func (e *Entity) ID() string {
	if e.IDField == "" {
		return DefaultIDField
	}
	return e.IDField
}

// Array describes a homogeneous list whose elements follow Elem.
type Array struct {
	Elem Schema
}

// Kind implements Schema.
func (*Array) Kind() Kind { return KindArray }

// Object describes a non-entity mapping with a declared shape. Declared
// fields are normalized through their schema; undeclared fields pass through
// unchanged.
type Object struct {
	Fields map[string]Schema
}

// Kind implements Schema.
func (*Object) Kind() Kind { return KindObject }

// Resolver picks the union member tag for an input value. It returns the tag
// and true, or false when the input cannot be classified.
type Resolver func(input map[string]any) (string, bool)

// Union describes a polymorphic relation whose concrete entity type is chosen
// per value. Resolution requires either a Discriminant field present in the
// input data or a caller-supplied Resolve callback; there is no
// store-membership probing.
type Union struct {
	Members      map[string]Schema
	Discriminant string
	Resolve      Resolver
}

// Kind implements Schema.
func (*Union) Kind() Kind { return KindUnion }

// Value is a passthrough leaf: the data is returned unchanged and never
// stored.
type Value struct{}

// Kind implements Schema.
func (*Value) Kind() Kind { return KindValue }

// NewEntity creates an entity schema named name with the given relation map.
// A nil relations map is treated as empty.
func NewEntity(name string, relations map[string]Schema) *Entity {
	if relations == nil {
		relations = map[string]Schema{}
	}
	return &Entity{Name: name, Relations: relations}
}

// NewArray creates an array schema over elem.
func NewArray(elem Schema) *Array { return &Array{Elem: elem} }

// NewObject creates an object schema with the given declared fields.
func NewObject(fields map[string]Schema) *Object {
	if fields == nil {
		fields = map[string]Schema{}
	}
	return &Object{Fields: fields}
}

// NewUnion creates a union schema whose member is selected by the named
// discriminant field in the input data.
func NewUnion(members map[string]Schema, discriminant string) *Union {
	return &Union{Members: members, Discriminant: discriminant}
}

// NewValue creates a passthrough schema.
func NewValue() *Value { return &Value{} }
