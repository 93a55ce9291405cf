// Package tracking pairs loaded or created records with a snapshot of their
// state so that field-level and relationship-level changes can be reported later.
package tracking

import (
	"sort"
	"sync"

	"github.com/wormsql/worm/internal/orm/schema"
)

// Tracked is a record together with the snapshot taken when it was loaded or created.
// Data is the live record; callers mutate it freely.
type Tracked struct {
	Entity *schema.Entity
	Data   map[string]interface{}

	// NoChildren marks a record loaded without its relationships.
	// Saving it leaves related tables untouched.
	NoChildren bool

	mu       sync.RWMutex
	snapshot map[string]interface{}
}

// Track takes a deep copy of record as the baseline for later diffs
func Track(record map[string]interface{}, entity *schema.Entity) *Tracked {
	return &Tracked{
		Entity:   entity,
		Data:     record,
		snapshot: schema.CopyRecord(record),
	}
}

// Reset replaces the snapshot with a copy of the current data.
// This should be called after a successful save operation.
func (t *Tracked) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshot = schema.CopyRecord(t.Data)
}

// Replace swaps in new data and snapshots it
func (t *Tracked) Replace(record map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Data = record
	t.snapshot = schema.CopyRecord(record)
}

// Snapshot returns a copy of the baseline state
func (t *Tracked) Snapshot() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return schema.CopyRecord(t.snapshot)
}

// Diff compares the live record against its snapshot
func (t *Tracked) Diff(reg *schema.Registry) (*Diff, error) {
	t.mu.RLock()
	snapshot := t.snapshot
	t.mu.RUnlock()
	return Compare(reg, t.Entity, t.Data, snapshot)
}

// Changed returns true if the specified top-level field differs from the snapshot
func (t *Tracked) Changed(field string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	old, hadOld := t.snapshot[field]
	cur, hasCur := t.Data[field]
	if hadOld != hasCur {
		return true
	}
	return !valuesEqual(old, cur)
}

// ChangedFields returns the sorted names of the non-relationship fields that changed
func (t *Tracked) ChangedFields() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	changes := scalarChanges(t.Entity, t.Data, t.snapshot)
	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// PreviousValue returns the snapshot value of a field
// Returns nil if the field didn't exist in the snapshot
func (t *Tracked) PreviousValue(field string) interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return schema.CopyValue(t.snapshot[field])
}

// Untracked wraps a record that has no stored counterpart yet. Its diff reports it as added.
func Untracked(record map[string]interface{}, entity *schema.Entity) *Tracked {
	return &Tracked{
		Entity: entity,
		Data:   record,
	}
}
