// Package crud maps records to rows and back: it reads entity trees through a
// single joined SELECT and saves them through the cascade of their relationships.
package crud

import (
	"go.uber.org/zap"

	"github.com/wormsql/worm/internal/orm/hooks"
	"github.com/wormsql/worm/internal/orm/schema"
	"github.com/wormsql/worm/internal/orm/storage"
)

// Engine runs reads and saves for every entity of a registry
type Engine struct {
	registry *schema.Registry
	store    storage.Store
	hooks    *hooks.Executor
	logger   *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for save and validation events
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHooks runs the executor's BeforeSave and AfterSave hooks for every saved row
func WithHooks(executor *hooks.Executor) Option {
	return func(e *Engine) {
		e.hooks = executor
	}
}

// NewEngine creates an engine over a registry and a store
func NewEngine(registry *schema.Registry, store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the engine resolves entities from
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Model binds the engine to a connection and a table
func (e *Engine) Model(conn storage.Conn, table string) *Model {
	return &Model{engine: e, conn: conn, table: table}
}
