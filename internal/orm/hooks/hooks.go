// Package hooks registers per-table lifecycle callbacks that run around a save.
//
// Synchronous hooks run on the save's connection and abort the save when they
// fail. Async hooks receive a deep copy of the record and run later on an
// AsyncQueue worker with a nil connection; their failures are only logged.
package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wormsql/worm/internal/orm/schema"
	"github.com/wormsql/worm/internal/orm/storage"
)

// Kind is the point of the save a hook runs at
type Kind int

const (
	// BeforeSave runs after the entity's own BeforeSave and before validation
	BeforeSave Kind = iota
	// AfterSave runs once the row and all of its children are written
	AfterSave
)

// String returns the kind's name
func (k Kind) String() string {
	switch k {
	case BeforeSave:
		return "before_save"
	case AfterSave:
		return "after_save"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Func is a hook body. Synchronous hooks may modify record.
type Func func(ctx context.Context, conn storage.Conn, record map[string]interface{}) error

// Hook represents a registered lifecycle hook
type Hook struct {
	Name  string
	Fn    Func
	Async bool
}

// Executor holds the hooks of every table
type Executor struct {
	hooks  map[string]map[Kind][]*Hook
	queue  *AsyncQueue
	logger *zap.Logger
}

// NewExecutor creates an executor. queue may be nil when no async hooks are registered.
func NewExecutor(queue *AsyncQueue, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		hooks:  make(map[string]map[Kind][]*Hook),
		queue:  queue,
		logger: logger,
	}
}

// Register adds a hook for table. Hooks of one kind run in registration order.
// It is not safe to call Register while saves are running.
func (e *Executor) Register(table string, kind Kind, hook *Hook) {
	if e.hooks[table] == nil {
		e.hooks[table] = make(map[Kind][]*Hook)
	}
	e.hooks[table][kind] = append(e.hooks[table][kind], hook)
}

// HasHooks reports whether table has any hook of kind
func (e *Executor) HasHooks(table string, kind Kind) bool {
	return len(e.hooks[table][kind]) > 0
}

// Run executes the hooks of table for kind. The first synchronous failure is
// returned and the remaining hooks are skipped.
func (e *Executor) Run(ctx context.Context, conn storage.Conn, table string, kind Kind, record map[string]interface{}) error {
	for _, hook := range e.hooks[table][kind] {
		if hook.Async {
			if err := e.enqueue(table, kind, hook, record); err != nil {
				e.logger.Warn("failed to enqueue async hook",
					zap.String("table", table),
					zap.String("hook", hook.Name),
					zap.Error(err))
			}
			continue
		}

		if err := hook.Fn(ctx, conn, record); err != nil {
			return fmt.Errorf("%s hook %q on %s failed: %w", kind, hook.Name, table, err)
		}
	}
	return nil
}

func (e *Executor) enqueue(table string, kind Kind, hook *Hook, record map[string]interface{}) error {
	if e.queue == nil {
		return fmt.Errorf("%w: no queue configured", ErrQueueClosed)
	}

	recordCopy := schema.CopyRecord(record)
	return e.queue.Enqueue(AsyncTask{
		Name: fmt.Sprintf("%s.%s.%s", table, kind, hook.Name),
		Fn: func(ctx context.Context) error {
			return hook.Fn(ctx, nil, recordCopy)
		},
	})
}
