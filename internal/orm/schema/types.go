// Package schema provides the entity descriptors used by the worm mapping engine.
// An entity describes one table: its fields with their default values, its key
// and the relationships that connect it to other entities.
package schema

import (
	"fmt"
	"reflect"
	"time"
)

// IDField is the name of the synthetic identity column
const IDField = "id"

// Field is a declared field of an entity together with its default value
type Field struct {
	Name    string
	Default interface{}
}

// F is shorthand for declaring a Field
func F(name string, def interface{}) Field {
	return Field{Name: name, Default: def}
}

// ValidatorFunc validates a record. A nil or empty result means the record is valid.
type ValidatorFunc func(record map[string]interface{}) []error

// ManyToMany identifies the two foreign keys that together form the identity
// of a row in a pure link table
type ManyToMany struct {
	ParentField string
	ChildField  string
}

// RelationKind describes which side of a relationship holds the foreign key
type RelationKind int

const (
	// OneToMany means the target table holds a single FK column referencing us
	OneToMany RelationKind = iota
	// CompositeOneToMany means both tables share the FK column names
	CompositeOneToMany
	// ManyToOne means we hold the FK column referencing the target's key
	ManyToOne
)

// String returns the string representation of the relationship kind
func (k RelationKind) String() string {
	switch k {
	case OneToMany:
		return "one_to_many"
	case CompositeOneToMany:
		return "composite_one_to_many"
	case ManyToOne:
		return "many_to_one"
	default:
		return "unknown"
	}
}

// Relationship is a directional edge from the owning entity to the entity named by MapsTo
type Relationship struct {
	Field  string
	MapsTo string

	// Exactly one of these is set
	WithField    string
	WithFields   []string
	WithOurField string

	// InsertOnly children are appended on save, never deleted or joined for reads
	InsertOnly bool
	// CascadeDelete removes all existing children before the current set is saved
	CascadeDelete bool
}

// Kind returns the relationship kind derived from its FK configuration
func (r *Relationship) Kind() RelationKind {
	switch {
	case r.WithOurField != "":
		return ManyToOne
	case len(r.WithFields) > 0:
		return CompositeOneToMany
	default:
		return OneToMany
	}
}

// Plural reports whether the related data is a list of records
func (r *Relationship) Plural() bool {
	return r.Kind() != ManyToOne
}

// ChildKeyFields returns the FK columns on the target table that reference the owner
func (r *Relationship) ChildKeyFields() []string {
	if len(r.WithFields) > 0 {
		return r.WithFields
	}
	return []string{r.WithField}
}

func (r *Relationship) fkForms() int {
	n := 0
	if r.WithField != "" {
		n++
	}
	if r.WithFields != nil {
		n++
	}
	if r.WithOurField != "" {
		n++
	}
	return n
}

// Entity describes a mapped table
type Entity struct {
	Table         string
	Fields        []Field
	PrimaryKey    []string
	ManyToMany    *ManyToMany
	Relationships []*Relationship
	Validator     ValidatorFunc
	BeforeSave    func(record map[string]interface{})

	// Derived on registration
	columns  []string
	isColumn map[string]bool
	relByFld map[string]*Relationship
	defaults map[string]interface{}
}

// Columns returns the persisted column names in declaration order
func (e *Entity) Columns() []string {
	return e.columns
}

// IsColumn reports whether name is a persisted column
func (e *Entity) IsColumn(name string) bool {
	return e.isColumn[name]
}

// IsRelationship reports whether name holds related records
func (e *Entity) IsRelationship(name string) bool {
	_, ok := e.relByFld[name]
	return ok
}

// RelationshipFor returns the relationship stored under the given field
func (e *Entity) RelationshipFor(field string) (*Relationship, bool) {
	rel, ok := e.relByFld[field]
	return rel, ok
}

// Default returns a fresh copy of the declared default for a field
func (e *Entity) Default(name string) (interface{}, bool) {
	v, ok := e.defaults[name]
	if !ok {
		return nil, false
	}
	return CopyValue(v), true
}

// HasField returns true if the entity declares the field
func (e *Entity) HasField(name string) bool {
	_, ok := e.defaults[name]
	return ok
}

// HasID reports whether the entity has a synthetic id column
func (e *Entity) HasID() bool {
	return e.HasField(IDField)
}

// HasAlternateKey reports whether a non-id entity can be identified by PrimaryKey or ManyToMany
func (e *Entity) HasAlternateKey() bool {
	return !e.HasID() && (len(e.PrimaryKey) > 0 || e.ManyToMany != nil)
}

// IsResolver reports whether the entity is a pure link table without its own identity
func (e *Entity) IsResolver() bool {
	return e.ManyToMany != nil && !e.HasID()
}

// KeyFields returns the fields that identify a row: id, else the primary key,
// else the many-to-many pair. It is empty for entities without any key.
func (e *Entity) KeyFields() []string {
	switch {
	case e.HasID():
		return []string{IDField}
	case len(e.PrimaryKey) > 0:
		return e.PrimaryKey
	case e.ManyToMany != nil:
		return []string{e.ManyToMany.ParentField, e.ManyToMany.ChildField}
	default:
		return nil
	}
}

// SingleKey returns the single column used when another table references this entity
func (e *Entity) SingleKey() (string, error) {
	if e.HasID() {
		return IDField, nil
	}
	if len(e.PrimaryKey) == 1 {
		return e.PrimaryKey[0], nil
	}
	return "", fmt.Errorf("%w: %s has no single-column key", ErrInvalidSchema, e.Table)
}

// NewRecord returns a record populated with deep copies of the declared defaults
func (e *Entity) NewRecord() map[string]interface{} {
	record := make(map[string]interface{}, len(e.Fields))
	for _, f := range e.Fields {
		record[f.Name] = CopyValue(f.Default)
	}
	return record
}

// classify computes the static column/relationship split
func (e *Entity) classify() {
	e.relByFld = make(map[string]*Relationship, len(e.Relationships))
	for _, rel := range e.Relationships {
		e.relByFld[rel.Field] = rel
	}

	e.columns = make([]string, 0, len(e.Fields))
	e.isColumn = make(map[string]bool, len(e.Fields))
	e.defaults = make(map[string]interface{}, len(e.Fields))
	for _, f := range e.Fields {
		e.defaults[f.Name] = f.Default
		if _, rel := e.relByFld[f.Name]; rel || isComposite(f.Default) {
			continue
		}
		e.columns = append(e.columns, f.Name)
		e.isColumn[f.Name] = true
	}
}

// isComposite reports whether a default marks a non-column placeholder
func isComposite(v interface{}) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case []byte, time.Time, *time.Time:
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Func:
		return true
	default:
		return false
	}
}

// CopyRecord returns a deep copy of a record. A nil record stays nil.
func CopyRecord(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = CopyValue(v)
	}
	return out
}

// CopyValue copies maps and slices recursively, keeping their concrete types.
// Nil maps and slices stay nil; other values are returned as-is.
func CopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return CopyRecord(val)
	case []map[string]interface{}:
		if val == nil {
			return val
		}
		out := make([]map[string]interface{}, len(val))
		for i, item := range val {
			out[i] = CopyRecord(item)
		}
		return out
	case []interface{}:
		if val == nil {
			return val
		}
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = CopyValue(item)
		}
		return out
	case []byte:
		if val == nil {
			return val
		}
		return append([]byte{}, val...)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			if item := CopyValue(rv.Index(i).Interface()); item != nil {
				out.Index(i).Set(reflect.ValueOf(item))
			}
		}
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			item := CopyValue(iter.Value().Interface())
			if item == nil {
				out.SetMapIndex(iter.Key(), reflect.Zero(rv.Type().Elem()))
				continue
			}
			out.SetMapIndex(iter.Key(), reflect.ValueOf(item))
		}
		return out.Interface()
	default:
		return v
	}
}
