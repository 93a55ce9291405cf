package commands

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wormsql/worm/internal/cli/config"
	"github.com/wormsql/worm/internal/cli/ui"
	"github.com/wormsql/worm/internal/orm/crud"
	"github.com/wormsql/worm/internal/orm/schema"
	"github.com/wormsql/worm/internal/orm/storage"
)

// configError marks failures to load or validate configuration
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// unknownTableError carries the closest registered table names
type unknownTableError struct {
	table       string
	suggestions []string
}

func (e *unknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q", e.table)
}

// session is the state a command runs with: configuration, logger, the
// loaded schema and, when requested, an open database
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *schema.Registry
	db       *sql.DB
}

// open loads configuration and schema. The database is opened only when withDB is set.
func (o *globalOptions) open(ctx context.Context, withDB bool) (*session, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, &configError{err}
	}
	if o.debug {
		cfg.Debug = true
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, &configError{err}
	}

	registry, err := loadRegistry(cfg.Schema.Dir)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger, registry: registry}
	if withDB {
		s.db, err = openDB(ctx, cfg)
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the database and flushes the logger
func (s *session) Close() {
	if s.db != nil {
		s.db.Close()
	}
	_ = s.logger.Sync()
}

// engine builds a mapping engine over the session's schema
func (s *session) engine() *crud.Engine {
	store := storage.NewSQLStore(
		storage.WithLogger(s.logger.Named("sql")),
		storage.WithDebug(s.cfg.Debug),
	)
	return crud.NewEngine(s.registry, store, crud.WithLogger(s.logger.Named("engine")))
}

// entity resolves a table name, suggesting near matches when it is unknown
func (s *session) entity(table string) (*schema.Entity, error) {
	if e, ok := s.registry.Lookup(table); ok {
		return e, nil
	}
	return nil, &unknownTableError{
		table:       table,
		suggestions: ui.FindSimilar(table, s.registry.Tables(), 3),
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	if cfg.Debug && level > zapcore.InfoLevel {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func loadRegistry(dir string) (*schema.Registry, error) {
	entities, err := schema.LoadDir(dir)
	if err != nil {
		return nil, err
	}

	registry := schema.NewRegistry()
	for _, e := range entities {
		if err := registry.Register(e); err != nil {
			return nil, err
		}
	}
	if err := registry.ValidateAll(); err != nil {
		return nil, err
	}
	return registry, nil
}

// parseValue turns a command line argument into a query parameter.
// Integers become int64 and UUIDs are normalised; everything else stays a string.
func parseValue(s string) interface{} {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if id, err := uuid.Parse(s); err == nil {
		return id.String()
	}
	return s
}

func parseValues(args []string) []interface{} {
	values := make([]interface{}, len(args))
	for i, a := range args {
		values[i] = parseValue(a)
	}
	return values
}

func sortedFields(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
