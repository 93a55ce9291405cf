package tracking

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/wormsql/worm/internal/orm/schema"
)

// Status is the outcome of comparing a record against its snapshot
type Status string

const (
	StatusAdded     Status = "added"
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
)

// FieldChange represents a change to a single field
type FieldChange struct {
	From interface{}
	To   interface{}
}

// Diff describes one record. Relationship fields inside Obj hold a *Diff
// (singular) or []*Diff (plural) in place of the related records.
type Diff struct {
	Status Status
	Obj    map[string]interface{}
	Change map[string]FieldChange

	// Removed lists snapshot children that no longer appear in the record, by
	// relationship field. A relationship field deleted from the record removes all of them.
	Removed map[string][]map[string]interface{}
}

// Compare diffs current against snapshot using the relationships of e. A nil
// snapshot reports the record and all of its children as added. Neither
// argument is modified.
func Compare(reg *schema.Registry, e *schema.Entity, current, snapshot map[string]interface{}) (*Diff, error) {
	d := &differ{
		reg:    reg,
		onPath: make(map[string]bool),
	}
	return d.compare(e, current, snapshot)
}

type differ struct {
	reg    *schema.Registry
	onPath map[string]bool
}

func (d *differ) compare(e *schema.Entity, current, snapshot map[string]interface{}) (*Diff, error) {
	if d.onPath[e.Table] {
		return nil, fmt.Errorf("%w: %s is reachable from itself", schema.ErrInfiniteSchemaLoop, e.Table)
	}
	d.onPath[e.Table] = true
	defer delete(d.onPath, e.Table)

	diff := &Diff{Obj: Sanitize(current)}

	if snapshot == nil {
		diff.Status = StatusAdded
	} else if changes := scalarChanges(e, current, snapshot); len(changes) > 0 {
		diff.Status = StatusChanged
		diff.Change = changes
	} else {
		diff.Status = StatusUnchanged
	}

	for _, rel := range e.Relationships {
		var old interface{}
		if snapshot != nil {
			old = snapshot[rel.Field]
		}

		cur, present := diff.Obj[rel.Field]
		if !present {
			// dropping the field drops every child the snapshot held
			diff.addRemoved(rel.Field, droppedChildren(rel, old))
			continue
		}

		target, err := d.reg.Entity(rel.MapsTo)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Table, rel.Field, err)
		}

		if rel.Plural() {
			diffs, removed, err := d.compareChildren(target, records(cur), records(old))
			if err != nil {
				return nil, err
			}
			diff.Obj[rel.Field] = diffs
			diff.addRemoved(rel.Field, removed)
			continue
		}

		curChild, _ := cur.(map[string]interface{})
		oldChild, _ := old.(map[string]interface{})
		if curChild == nil {
			diff.Obj[rel.Field] = nil
			if oldChild != nil {
				diff.addRemoved(rel.Field, []map[string]interface{}{Sanitize(oldChild)})
			}
			continue
		}
		if oldChild != nil && !sameKey(target, curChild, oldChild) {
			diff.addRemoved(rel.Field, []map[string]interface{}{Sanitize(oldChild)})
			oldChild = nil
		}

		child, err := d.compare(target, curChild, oldChild)
		if err != nil {
			return nil, err
		}
		diff.Obj[rel.Field] = child
	}

	return diff, nil
}

// compareChildren matches live children to snapshot children by key. Children
// with an incomplete key are matched by position among the other key-less children.
func (d *differ) compareChildren(e *schema.Entity, current, snapshot []map[string]interface{}) ([]*Diff, []map[string]interface{}, error) {
	keyFields := e.KeyFields()
	used := make([]bool, len(snapshot))
	byKey := make(map[string]int)
	var keyless []int

	for i, child := range snapshot {
		if key, ok := childKey(child, keyFields); ok {
			if _, dup := byKey[key]; !dup {
				byKey[key] = i
			}
		} else {
			keyless = append(keyless, i)
		}
	}

	diffs := make([]*Diff, 0, len(current))
	for _, child := range current {
		var old map[string]interface{}
		if key, ok := childKey(child, keyFields); ok {
			if i, found := byKey[key]; found && !used[i] {
				used[i] = true
				old = snapshot[i]
			}
		} else if len(keyless) > 0 {
			i := keyless[0]
			keyless = keyless[1:]
			used[i] = true
			old = snapshot[i]
		}

		diff, err := d.compare(e, child, old)
		if err != nil {
			return nil, nil, err
		}
		diffs = append(diffs, diff)
	}

	var removed []map[string]interface{}
	for i, child := range snapshot {
		if !used[i] {
			removed = append(removed, Sanitize(child))
		}
	}
	return diffs, removed, nil
}

func droppedChildren(rel *schema.Relationship, old interface{}) []map[string]interface{} {
	if !rel.Plural() {
		if child, ok := old.(map[string]interface{}); ok && child != nil {
			return []map[string]interface{}{Sanitize(child)}
		}
		return nil
	}
	var out []map[string]interface{}
	for _, child := range records(old) {
		out = append(out, Sanitize(child))
	}
	return out
}

func (d *Diff) addRemoved(field string, removed []map[string]interface{}) {
	if len(removed) == 0 {
		return
	}
	if d.Removed == nil {
		d.Removed = make(map[string][]map[string]interface{})
	}
	d.Removed[field] = append(d.Removed[field], removed...)
}

// scalarChanges compares every field that is not a relationship
func scalarChanges(e *schema.Entity, current, snapshot map[string]interface{}) map[string]FieldChange {
	changes := make(map[string]FieldChange)

	check := func(field string) {
		if strings.HasPrefix(field, privatePrefix) || e.IsRelationship(field) {
			return
		}
		if _, seen := changes[field]; seen {
			return
		}
		old, hadOld := snapshot[field]
		cur, hasCur := current[field]
		if hadOld == hasCur && valuesEqual(old, cur) {
			return
		}
		changes[field] = FieldChange{From: schema.CopyValue(old), To: schema.CopyValue(cur)}
	}

	for field := range snapshot {
		check(field)
	}
	for field := range current {
		check(field)
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}

// valuesEqual is strict equality with time values compared by instant
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// records normalizes a plural relationship value
func records(v interface{}) []map[string]interface{} {
	switch val := v.(type) {
	case []map[string]interface{}:
		return val
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(val))
		for _, item := range val {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func childKey(record map[string]interface{}, keyFields []string) (string, bool) {
	if len(keyFields) == 0 {
		return "", false
	}
	var b strings.Builder
	for i, field := range keyFields {
		v, ok := record[field]
		if !ok || v == nil {
			return "", false
		}
		if i > 0 {
			b.WriteByte(0)
		}
		fmt.Fprintf(&b, "%T:%v", v, v)
	}
	return b.String(), true
}

// sameKey reports whether two singular children are the same row. Children
// without a complete key are treated as the same row.
func sameKey(e *schema.Entity, a, b map[string]interface{}) bool {
	ka, okA := childKey(a, e.KeyFields())
	kb, okB := childKey(b, e.KeyFields())
	if !okA || !okB {
		return true
	}
	return ka == kb
}
