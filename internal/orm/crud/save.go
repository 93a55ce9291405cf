package crud

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wormsql/worm/internal/orm/hooks"
	"github.com/wormsql/worm/internal/orm/schema"
	"github.com/wormsql/worm/internal/orm/storage"
	"github.com/wormsql/worm/internal/orm/tracking"
)

// Save writes record and, through its relationships, every child it carries.
// The input is not modified; the returned copy holds generated keys and the saved children.
func (e *Engine) Save(ctx context.Context, conn storage.Conn, table string, record map[string]interface{}) (map[string]interface{}, error) {
	entity, err := e.registry.Entity(table)
	if err != nil {
		return nil, err
	}
	return e.saveRoot(ctx, conn, entity, record, false)
}

// SaveTracked saves a tracked record and resets its snapshot to the saved state.
// Records loaded without children are saved without touching related tables.
func (e *Engine) SaveTracked(ctx context.Context, conn storage.Conn, t *tracking.Tracked) error {
	saved, err := e.saveRoot(ctx, conn, t.Entity, t.Data, t.NoChildren)
	if err != nil {
		return err
	}
	t.Replace(saved)
	return nil
}

func (e *Engine) saveRoot(ctx context.Context, conn storage.Conn, entity *schema.Entity, record map[string]interface{}, noChildren bool) (map[string]interface{}, error) {
	s := &saver{
		engine: e,
		conn:   conn,
		logger: e.logger.With(zap.String("save_id", uuid.NewString()), zap.String("root", entity.Table)),
	}
	return s.save(ctx, entity, record, noChildren)
}

// saver carries the state shared by one cascade
type saver struct {
	engine *Engine
	conn   storage.Conn
	logger *zap.Logger
}

func (s *saver) store() storage.Store {
	return s.engine.store
}

func (s *saver) save(ctx context.Context, entity *schema.Entity, record map[string]interface{}, noChildren bool) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(record))
	for k, v := range record {
		result[k] = v
	}

	if entity.BeforeSave != nil {
		entity.BeforeSave(result)
	}
	if err := s.runHooks(ctx, entity, hooks.BeforeSave, result); err != nil {
		return nil, err
	}

	if entity.Validator != nil {
		if errs := entity.Validator(result); len(errs) > 0 {
			s.logger.Warn("validation failed",
				zap.String("table", entity.Table),
				zap.Errors("errors", errs),
			)
			return nil, &ValidationError{Table: entity.Table, Errors: errs}
		}
	}

	if err := s.saveRow(ctx, entity, result); err != nil {
		return nil, err
	}

	if !noChildren {
		if err := s.saveRelationships(ctx, entity, result); err != nil {
			return nil, err
		}
	}

	if err := s.runHooks(ctx, entity, hooks.AfterSave, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *saver) runHooks(ctx context.Context, entity *schema.Entity, kind hooks.Kind, record map[string]interface{}) error {
	if s.engine.hooks == nil {
		return nil
	}
	return s.engine.hooks.Run(ctx, s.conn, entity.Table, kind, record)
}

func (s *saver) saveRelationships(ctx context.Context, entity *schema.Entity, result map[string]interface{}) error {
	for _, rel := range entity.Relationships {
		if rel.Kind() == schema.ManyToOne {
			continue
		}
		value, ok := result[rel.Field]
		if !ok || value == nil {
			continue
		}
		saved, err := s.saveChildren(ctx, entity, rel, result, value)
		if err != nil {
			return err
		}
		result[rel.Field] = saved
	}
	return nil
}

// saveRow issues the UPDATE or INSERT for the row itself and merges any generated key
func (s *saver) saveRow(ctx context.Context, entity *schema.Entity, result map[string]interface{}) error {
	columns := make([]storage.Column, 0, len(entity.Columns()))
	for _, name := range entity.Columns() {
		if v, ok := result[name]; ok {
			columns = append(columns, storage.Column{Name: name, Value: v})
		}
	}

	if entity.HasID() && positiveKey(result[schema.IDField]) {
		if len(columns) == 1 {
			return nil
		}
		n, err := s.store().Update(ctx, s.conn, entity.Table, columns)
		if err != nil {
			return err
		}
		s.logger.Debug("updated",
			zap.String("table", entity.Table),
			zap.Any("id", result[schema.IDField]),
			zap.Int64("rows", n),
		)
		return nil
	}

	if entity.HasAlternateKey() {
		keys := entity.KeyFields()
		if err := s.store().Remove(ctx, s.conn, entity.Table, fieldsWhere(keys), fieldValues(result, keys)); err != nil {
			return err
		}
	}

	id, err := s.store().Insert(ctx, s.conn, entity.Table, columns, storage.InsertOptions{ReturnKey: entity.HasID()})
	if err != nil {
		return err
	}
	if entity.HasID() && id != nil {
		result[schema.IDField] = id
	}
	s.logger.Debug("inserted", zap.String("table", entity.Table), zap.Any("id", id))
	return nil
}

// saveChildren replaces or appends the children of one relationship. Children
// are saved in order, each with its foreign keys pointing at the owner.
func (s *saver) saveChildren(ctx context.Context, owner *schema.Entity, rel *schema.Relationship, parent map[string]interface{}, value interface{}) ([]map[string]interface{}, error) {
	target, err := s.engine.registry.Entity(rel.MapsTo)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", owner.Table, rel.Field, err)
	}

	children, err := childRecords(value)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", owner.Table, rel.Field, err)
	}

	ownerFields := rel.WithFields
	if rel.Kind() == schema.OneToMany {
		key, err := owner.SingleKey()
		if err != nil {
			return nil, err
		}
		ownerFields = []string{key}
	}
	childFields := rel.ChildKeyFields()
	keyValues := fieldValues(parent, ownerFields)

	clearIDs := false
	if !rel.InsertOnly && (rel.CascadeDelete || target.IsResolver()) {
		if err := s.store().Remove(ctx, s.conn, target.Table, fieldsWhere(childFields), keyValues); err != nil {
			return nil, err
		}
		clearIDs = target.HasID()
	}

	saved := make([]map[string]interface{}, 0, len(children))
	for _, child := range children {
		c := make(map[string]interface{}, len(child))
		for k, v := range child {
			c[k] = v
		}
		if clearIDs {
			c[schema.IDField] = nil
		}
		for i, f := range childFields {
			c[f] = keyValues[i]
		}

		out, err := s.save(ctx, target, c, false)
		if err != nil {
			return nil, err
		}
		saved = append(saved, out)
	}
	return saved, nil
}

// childRecords accepts the list shapes a relationship field may hold
func childRecords(value interface{}) ([]map[string]interface{}, error) {
	switch v := value.(type) {
	case []map[string]interface{}:
		return v, nil
	case []interface{}:
		out := make([]map[string]interface{}, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: child %d is %T", ErrInvalidRecord, i, item)
			}
			out[i] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: children are %T", ErrInvalidRecord, value)
	}
}

func fieldValues(record map[string]interface{}, fields []string) []interface{} {
	values := make([]interface{}, len(fields))
	for i, f := range fields {
		values[i] = record[f]
	}
	return values
}

// positiveKey reports whether v identifies a stored row
func positiveKey(v interface{}) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() > 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() > 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() > 0
	case reflect.String:
		return rv.String() != ""
	case reflect.Ptr:
		return !rv.IsNil()
	case reflect.Array, reflect.Struct:
		// uuid.Nil and other zero values are unsaved keys
		return !rv.IsZero()
	default:
		return true
	}
}
