package joins

import (
	"fmt"
	"strings"

	"github.com/wormsql/worm/internal/orm/schema"
)

// Plan is the SELECT shape of an entity and everything joined beneath it
type Plan struct {
	// Fields is the comma separated projection, root first then each joined entity in traversal order
	Fields string
	// Joins holds one LEFT JOIN clause per joined relationship, in traversal order
	Joins []string
}

// JoinClause returns the joins separated by single spaces
func (p *Plan) JoinClause() string {
	return strings.Join(p.Joins, " ")
}

// Compose walks the relationship graph of e depth-first and returns its SELECT shape.
// Insert-only relationships are neither joined nor descended into.
func Compose(reg *schema.Registry, e *schema.Entity) (*Plan, error) {
	c := &composer{
		reg:    reg,
		onPath: make(map[string]bool),
	}
	if err := c.walk(e); err != nil {
		return nil, err
	}

	return &Plan{
		Fields: strings.Join(c.fields, ","),
		Joins:  c.joins,
	}, nil
}

type composer struct {
	reg    *schema.Registry
	onPath map[string]bool
	fields []string
	joins  []string
}

func (c *composer) walk(e *schema.Entity) error {
	if c.onPath[e.Table] {
		return fmt.Errorf("%w: %s is reachable from itself", schema.ErrInfiniteSchemaLoop, e.Table)
	}
	c.onPath[e.Table] = true
	defer delete(c.onPath, e.Table)

	if projected := ProjectedFields(e); projected != "" {
		c.fields = append(c.fields, projected)
	}

	for _, rel := range e.Relationships {
		if rel.InsertOnly {
			continue
		}

		target, err := c.reg.Entity(rel.MapsTo)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", e.Table, rel.Field, err)
		}

		clause, err := joinClause(e, rel, target)
		if err != nil {
			return err
		}
		c.joins = append(c.joins, clause)

		if err := c.walk(target); err != nil {
			return err
		}
	}
	return nil
}

func joinClause(owner *schema.Entity, rel *schema.Relationship, target *schema.Entity) (string, error) {
	var on []string

	switch rel.Kind() {
	case schema.OneToMany:
		key, err := owner.SingleKey()
		if err != nil {
			return "", err
		}
		on = append(on, owner.Table+"."+key+"="+target.Table+"."+rel.WithField)
	case schema.CompositeOneToMany:
		for _, f := range rel.WithFields {
			on = append(on, owner.Table+"."+f+"="+target.Table+"."+f)
		}
	case schema.ManyToOne:
		key, err := target.SingleKey()
		if err != nil {
			return "", err
		}
		on = append(on, owner.Table+"."+rel.WithOurField+"="+target.Table+"."+key)
	}

	return "LEFT JOIN " + target.Table + " ON " + strings.Join(on, " AND "), nil
}
