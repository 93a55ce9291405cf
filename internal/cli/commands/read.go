package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wormsql/worm/internal/cli/ui"
	"github.com/wormsql/worm/internal/orm/query"
	"github.com/wormsql/worm/internal/orm/schema"
	"github.com/wormsql/worm/internal/orm/tracking"
)

// filterFlags are shared by list and count
type filterFlags struct {
	where  string
	params []string
	limit  int
	offset int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.where, "where", "w", "", "WHERE clause using $1, $2, ... placeholders")
	cmd.Flags().StringArrayVarP(&f.params, "param", "p", nil, "placeholder value (repeatable)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of root records")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "number of root records to skip")
}

func (f *filterFlags) apply(b *query.Builder) *query.Builder {
	if f.where != "" {
		b = b.Where(f.where, parseValues(f.params)...)
	}
	return b.Limit(f.limit).Offset(f.offset)
}

// NewGetCommand creates the get command
func NewGetCommand(opts *globalOptions) *cobra.Command {
	var single, asJSON bool

	cmd := &cobra.Command{
		Use:   "get <table> <key>",
		Short: "Read one record by key, with its children",
		Example: `  worm get post 42
  worm get post 42 --single --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.entity(args[0])
			if err != nil {
				return err
			}

			model := s.engine().Model(s.db, e.Table)
			var record *tracking.Tracked
			if single {
				record, err = model.GetSingle(cmd.Context(), parseValue(args[1]))
			} else {
				record, err = model.Get(cmd.Context(), parseValue(args[1]))
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), record.Data)
			}
			printRecord(cmd.OutOrStdout(), s.registry, e, record.Data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&single, "single", false, "do not read children")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// NewListCommand creates the list command
func NewListCommand(opts *globalOptions) *cobra.Command {
	var (
		filter     filterFlags
		orderBy    string
		noChildren bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list <table>",
		Short: "List records",
		Example: `  worm list post --where 'post.author_id=$1' -p 7 --order 'post.id DESC' --limit 10
  worm list post --where 'post.id IN ($1)' -p 1 -p 2 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.entity(args[0])
			if err != nil {
				return err
			}

			b := filter.apply(s.engine().Model(s.db, e.Table).Query()).FetchChildren(!noChildren)
			if orderBy != "" {
				b = b.OrderBy(orderBy)
			}

			records, err := b.List(cmd.Context())
			if err != nil {
				return err
			}

			data := make([]map[string]interface{}, len(records))
			for i, r := range records {
				data[i] = r.Data
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), data)
			}
			ui.RecordTable(cmd.OutOrStdout(), displayColumns(e), data, color.NoColor)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d records\n", len(data))
			return nil
		},
	}

	filter.register(cmd)
	cmd.Flags().StringVarP(&orderBy, "order", "o", "", "ORDER BY clause")
	cmd.Flags().BoolVar(&noChildren, "no-children", false, "do not read children")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// NewCountCommand creates the count command
func NewCountCommand(opts *globalOptions) *cobra.Command {
	var filter filterFlags

	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.entity(args[0])
			if err != nil {
				return err
			}

			n, err := filter.apply(s.engine().Model(s.db, e.Table).Query()).Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	filter.register(cmd)
	return cmd
}

// displayColumns lists the columns followed by the relationship fields
func displayColumns(e *schema.Entity) []string {
	cols := append([]string{}, e.Columns()...)
	for _, rel := range e.Relationships {
		cols = append(cols, rel.Field)
	}
	return cols
}

// printRecord renders a record's columns, then one table per relationship
func printRecord(w io.Writer, reg *schema.Registry, e *schema.Entity, record map[string]interface{}) {
	kv := ui.NewKeyValueTable(w, color.NoColor)
	for _, c := range e.Columns() {
		kv.AddRow(c, ui.FormatValue(record[c]))
	}
	kv.Render()

	for _, rel := range e.Relationships {
		target, ok := reg.Lookup(rel.MapsTo)
		if !ok {
			continue
		}

		fmt.Fprintln(w)
		ui.Header(w, rel.Field, color.NoColor)
		switch v := record[rel.Field].(type) {
		case []map[string]interface{}:
			ui.RecordTable(w, target.Columns(), v, color.NoColor)
		case map[string]interface{}:
			ui.RecordTable(w, target.Columns(), []map[string]interface{}{v}, color.NoColor)
		default:
			fmt.Fprintln(w, ui.FormatValue(v))
		}
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
