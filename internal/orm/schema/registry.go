package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the entity descriptors of one schema. Registration is expected
// to happen at startup, before the registry is shared with running queries.
type Registry struct {
	entities map[string]*Entity
	closed   bool
	mu       sync.RWMutex
}

// NewRegistry creates a new, open schema registry
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*Entity),
	}
}

// Register validates and stores an entity descriptor. The descriptor is copied;
// later changes to the argument do not affect the registry.
func (r *Registry) Register(entity *Entity) error {
	if err := validateEntity(entity); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.entities[entity.Table]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSchema, entity.Table)
	}

	r.entities[entity.Table] = cloneEntity(entity)
	return nil
}

// MustRegister registers entities and panics on the first failure
func (r *Registry) MustRegister(entities ...*Entity) {
	for _, e := range entities {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
}

// Lookup retrieves an entity by table name
func (r *Registry) Lookup(table string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, false
	}
	e, ok := r.entities[table]
	return e, ok
}

// Entity retrieves an entity by table name, returning ErrUnknownEntity when absent
func (r *Registry) Entity(table string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	e, ok := r.entities[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, table)
	}
	return e, nil
}

// Tables returns the registered table names in sorted order
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered entities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Clear removes all registered entities (useful for testing and schema reloads)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[string]*Entity)
}

// Close ends the registry lifecycle. Further registrations and lookups fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	r.closed = true
	r.entities = make(map[string]*Entity)
	return nil
}

// ValidateAll checks that every relationship resolves and that the joinable
// relationship graph has no cycles
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	snapshot := make(map[string]*Entity, len(r.entities))
	for k, v := range r.entities {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, rel := range snapshot[name].Relationships {
			if _, ok := snapshot[rel.MapsTo]; !ok {
				return fmt.Errorf("%w: %s.%s maps to %s", ErrUnknownEntity, name, rel.Field, rel.MapsTo)
			}
		}
	}

	graph := NewRelationshipGraph(snapshot)
	if cycles := graph.DetectCycles(); len(cycles) > 0 {
		return fmt.Errorf("%w:\n%s", ErrInfiniteSchemaLoop, formatCycles(cycles))
	}
	return nil
}

func validateEntity(e *Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidSchema)
	}
	if e.Table == "" {
		return fmt.Errorf("%w: table is required", ErrInvalidSchema)
	}
	if e.Fields == nil {
		return fmt.Errorf("%w: %s: fields are required", ErrInvalidSchema, e.Table)
	}

	declared := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: %s: field with empty name", ErrInvalidSchema, e.Table)
		}
		if declared[f.Name] {
			return fmt.Errorf("%w: %s: field %s declared twice", ErrInvalidSchema, e.Table, f.Name)
		}
		declared[f.Name] = true
	}

	for _, key := range e.PrimaryKey {
		if !declared[key] {
			return fmt.Errorf("%w: %s: primary key field %s is not declared", ErrInvalidSchema, e.Table, key)
		}
	}
	if m := e.ManyToMany; m != nil && (m.ParentField == "" || m.ChildField == "") {
		return fmt.Errorf("%w: %s: many_to_many needs parent_field and child_field", ErrInvalidSchema, e.Table)
	}

	seen := make(map[string]bool, len(e.Relationships))
	for i, rel := range e.Relationships {
		if rel == nil {
			return fmt.Errorf("%w: %s: relationship %d is nil", ErrInvalidSchema, e.Table, i)
		}
		if rel.Field == "" || rel.MapsTo == "" {
			return fmt.Errorf("%w: %s: relationship %d must have field and maps_to", ErrInvalidSchema, e.Table, i)
		}
		if seen[rel.Field] {
			return fmt.Errorf("%w: %s: relationship field %s used twice", ErrInvalidSchema, e.Table, rel.Field)
		}
		seen[rel.Field] = true
		if rel.fkForms() != 1 {
			return fmt.Errorf("%w: %s.%s: exactly one of with_field, with_fields, with_our_field is required",
				ErrInvalidSchema, e.Table, rel.Field)
		}
		if rel.WithFields != nil && len(rel.WithFields) == 0 {
			return fmt.Errorf("%w: %s.%s: with_fields is empty", ErrInvalidSchema, e.Table, rel.Field)
		}
	}
	return nil
}

func cloneEntity(e *Entity) *Entity {
	c := *e
	c.Fields = append([]Field(nil), e.Fields...)
	c.PrimaryKey = append([]string(nil), e.PrimaryKey...)
	if e.ManyToMany != nil {
		m := *e.ManyToMany
		c.ManyToMany = &m
	}
	c.Relationships = make([]*Relationship, len(e.Relationships))
	for i, rel := range e.Relationships {
		rc := *rel
		rc.WithFields = append([]string(nil), rel.WithFields...)
		if rel.WithFields == nil {
			rc.WithFields = nil
		}
		c.Relationships[i] = &rc
	}
	c.classify()
	return &c
}
