package entitystore

import (
	"fmt"

	"github.com/developerfred/ponder/entitystore/storage"
)

// ScalarType is the primitive type of a materialized field. For list
// fields it is the element type.
type ScalarType string

const (
	TypeString  ScalarType = "string"
	TypeInt     ScalarType = "int"
	TypeFloat   ScalarType = "float"
	TypeBoolean ScalarType = "boolean"
	TypeBigInt  ScalarType = "bigint"
	TypeBytes   ScalarType = "bytes"
)

// FieldKind is the closed set of field shapes. Codec and filter
// compilation switch exhaustively on it.
type FieldKind string

const (
	KindScalar  FieldKind = "scalar"
	KindList    FieldKind = "list"
	KindDerived FieldKind = "derived"
)

// Field describes one entity field.
//
// Scalar and list fields are materialized as a column. Derived fields are
// virtual: they name another entity and the scalar field on it that holds
// this entity's id, and resolve to a reverse-relation query.
type Field struct {
	Name     string
	Kind     FieldKind
	Type     ScalarType
	Optional bool

	DerivedFromEntityName string
	DerivedFromFieldName  string
}

// Scalar returns a required scalar field.
func Scalar(name string, t ScalarType) Field {
	return Field{Name: name, Kind: KindScalar, Type: t}
}

// OptionalScalar returns a nullable scalar field.
func OptionalScalar(name string, t ScalarType) Field {
	return Field{Name: name, Kind: KindScalar, Type: t, Optional: true}
}

// List returns a required list field with the given element type.
func List(name string, elem ScalarType) Field {
	return Field{Name: name, Kind: KindList, Type: elem}
}

// Derived returns a virtual reverse-relation field. entityName is the
// target entity's ID; fieldName is the scalar field on it holding this
// entity's id.
func Derived(name, entityName, fieldName string) Field {
	return Field{
		Name:                  name,
		Kind:                  KindDerived,
		DerivedFromEntityName: entityName,
		DerivedFromFieldName:  fieldName,
	}
}

// ColumnDef emits the column definition for a materialized field.
// BigInt and list values are stored as text, booleans as integers, so
// the mapping stays portable across dialects.
func (f Field) ColumnDef() storage.ColumnDef {
	def := storage.ColumnDef{
		Name:       f.Name,
		NotNull:    !f.Optional,
		PrimaryKey: f.Name == idFieldName,
	}
	if f.Kind == KindList {
		def.Type = storage.ColumnText
		return def
	}
	switch f.Type {
	case TypeInt, TypeBoolean:
		def.Type = storage.ColumnInteger
	case TypeFloat:
		def.Type = storage.ColumnReal
	case TypeBytes:
		def.Type = storage.ColumnBlob
	default:
		def.Type = storage.ColumnText
	}
	return def
}

const idFieldName = "id"

// Entity is one record kind, backed by one table. ID is the table name,
// Name the display name. Immutable after construction.
type Entity struct {
	ID     string
	Name   string
	Fields []Field

	byName map[string]Field
}

// NewEntity builds an entity and validates that exactly one field is
// named "id" and that it is a materialized scalar.
func NewEntity(id, name string, fields []Field) (Entity, error) {
	e := Entity{ID: id, Name: name, Fields: fields, byName: make(map[string]Field, len(fields))}
	idSeen := false
	for _, f := range fields {
		if _, dup := e.byName[f.Name]; dup {
			return Entity{}, SchemaError(fmt.Sprintf("entity %s: duplicate field %s", id, f.Name))
		}
		e.byName[f.Name] = f
		if f.Name == idFieldName {
			if f.Kind != KindScalar {
				return Entity{}, SchemaError(fmt.Sprintf("entity %s: id field must be a scalar", id))
			}
			idSeen = true
		}
	}
	if !idSeen {
		return Entity{}, SchemaError(fmt.Sprintf("entity %s: missing id field", id))
	}
	return e, nil
}

// MustEntity is NewEntity for statically-known definitions.
func MustEntity(id, name string, fields []Field) Entity {
	e, err := NewEntity(id, name, fields)
	if err != nil {
		panic(err)
	}
	return e
}

// Field looks up a field by name.
func (e Entity) Field(name string) (Field, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// ScalarFields returns the materialized fields in declaration order.
// This order is also the column order for every statement the store
// builds against the entity's table.
func (e Entity) ScalarFields() []Field {
	out := make([]Field, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Kind != KindDerived {
			out = append(out, f)
		}
	}
	return out
}

// ColumnDefs returns the column definitions for the entity's table.
func (e Entity) ColumnDefs() []storage.ColumnDef {
	fields := e.ScalarFields()
	defs := make([]storage.ColumnDef, len(fields))
	for i, f := range fields {
		defs[i] = f.ColumnDef()
	}
	return defs
}

// Schema is an ordered set of entities. Immutable after construction;
// build a new Schema for any change.
type Schema struct {
	Entities []Entity

	byID   map[string]Entity
	byName map[string]Entity
}

// NewSchema builds a schema and validates that entity IDs are unique.
func NewSchema(entities ...Entity) (*Schema, error) {
	s := &Schema{
		Entities: entities,
		byID:     make(map[string]Entity, len(entities)),
		byName:   make(map[string]Entity, len(entities)),
	}
	for _, e := range entities {
		if _, dup := s.byID[e.ID]; dup {
			return nil, SchemaError(fmt.Sprintf("duplicate entity id %s", e.ID))
		}
		s.byID[e.ID] = e
		s.byName[e.Name] = e
	}
	return s, nil
}

// MustSchema is NewSchema for statically-known definitions.
func MustSchema(entities ...Entity) *Schema {
	s, err := NewSchema(entities...)
	if err != nil {
		panic(err)
	}
	return s
}

// Entity looks up an entity by ID (table name).
func (s *Schema) Entity(id string) (Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// EntityByName looks up an entity by display name.
func (s *Schema) EntityByName(name string) (Entity, bool) {
	e, ok := s.byName[name]
	return e, ok
}
