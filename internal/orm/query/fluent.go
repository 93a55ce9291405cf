// Package query composes the options of a read: WHERE fragments written with
// their own $1..$n placeholders are renumbered into one statement, list
// parameters are expanded and the result is handed to a Runner for execution.
package query

import (
	"context"
	"strings"

	"github.com/wormsql/worm/internal/orm/tracking"
)

// Options describes a read against one entity
type Options struct {
	Where   string
	Params  []interface{}
	OrderBy string

	// Default is returned by a single-record read that finds no row
	Default map[string]interface{}

	// Limit and Offset are ignored when zero
	Limit  int
	Offset int

	// FetchChildren defaults to true when nil
	FetchChildren *bool
}

// WithChildren reports whether related records should be joined
func (o Options) WithChildren() bool {
	return o.FetchChildren == nil || *o.FetchChildren
}

// Runner executes composed options
type Runner interface {
	List(ctx context.Context, opts Options) ([]*tracking.Tracked, error)
	GetBy(ctx context.Context, opts Options) (*tracking.Tracked, error)
	Count(ctx context.Context, opts Options) (int64, error)
}

type clause struct {
	fragment string
	params   []interface{}
}

// Builder accumulates read options through chained calls
type Builder struct {
	runner        Runner
	wheres        []clause
	orderBy       []string
	def           map[string]interface{}
	limit         int
	offset        int
	fetchChildren *bool
	err           error
}

// New creates a builder that only composes options
func New() *Builder {
	return &Builder{}
}

// For creates a builder whose terminal methods execute through r
func For(r Runner) *Builder {
	return &Builder{runner: r}
}

// Where adds a fragment numbered from $1 with its own parameters. Fragments are joined with AND.
func (b *Builder) Where(fragment string, params ...interface{}) *Builder {
	b.wheres = append(b.wheres, clause{fragment: fragment, params: params})
	return b
}

// WherePredicate adds a structured predicate group
func (b *Builder) WherePredicate(group *PredicateGroup) *Builder {
	fragment, params, err := group.Fragment()
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	return b.Where(fragment, params...)
}

// OrderBy adds an ordering criterion
func (b *Builder) OrderBy(criteria string) *Builder {
	b.orderBy = append(b.orderBy, criteria)
	return b
}

// Default sets the record returned by GetSingle when nothing matches
func (b *Builder) Default(record map[string]interface{}) *Builder {
	b.def = record
	return b
}

// Limit caps the number of root rows
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Offset skips root rows
func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// FetchChildren selects whether relationships are joined
func (b *Builder) FetchChildren(fetch bool) *Builder {
	b.fetchChildren = &fetch
	return b
}

// Build renumbers and joins the WHERE fragments and returns the composed options
func (b *Builder) Build() (Options, error) {
	if b.err != nil {
		return Options{}, b.err
	}

	opts := Options{
		OrderBy:       strings.Join(b.orderBy, ","),
		Default:       b.def,
		Limit:         b.limit,
		Offset:        b.offset,
		FetchChildren: b.fetchChildren,
	}

	if len(b.wheres) > 0 {
		fragments := make([]string, 0, len(b.wheres))
		params := make([]interface{}, 0)
		for _, w := range b.wheres {
			fragment, flat, err := Renumber(w.fragment, w.params, len(params))
			if err != nil {
				return Options{}, err
			}
			fragments = append(fragments, fragment)
			params = append(params, flat...)
		}
		opts.Where = strings.Join(fragments, " AND ")
		opts.Params = params
	}

	return opts, nil
}

// List executes the read and returns every matching record
func (b *Builder) List(ctx context.Context) ([]*tracking.Tracked, error) {
	opts, err := b.build()
	if err != nil {
		return nil, err
	}
	return b.runner.List(ctx, opts)
}

// GetSingle executes the read and returns exactly one record
func (b *Builder) GetSingle(ctx context.Context) (*tracking.Tracked, error) {
	opts, err := b.build()
	if err != nil {
		return nil, err
	}
	return b.runner.GetBy(ctx, opts)
}

// Count executes the read as a row count without joins
func (b *Builder) Count(ctx context.Context) (int64, error) {
	opts, err := b.build()
	if err != nil {
		return 0, err
	}
	fetch := false
	opts.FetchChildren = &fetch
	return b.runner.Count(ctx, opts)
}

func (b *Builder) build() (Options, error) {
	if b.runner == nil {
		return Options{}, ErrNoRunner
	}
	return b.Build()
}
