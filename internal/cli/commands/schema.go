package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wormsql/worm/internal/cli/ui"
	"github.com/wormsql/worm/internal/orm/joins"
	"github.com/wormsql/worm/internal/orm/storage"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the entity schema",
		Long: `Inspect the entities declared in the schema directory.

Every command loads all *.yaml and *.yml files, registers them and checks that
relationships resolve and contain no cycles.`,
	}

	cmd.AddCommand(newSchemaCheckCommand(opts))
	cmd.AddCommand(newSchemaTablesCommand(opts))
	cmd.AddCommand(newSchemaPlanCommand(opts))

	return cmd
}

func newSchemaCheckCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			ui.WriteSuccess(cmd.OutOrStdout(),
				fmt.Sprintf("%d entities loaded from %s", s.registry.Count(), s.cfg.Schema.Dir),
				color.NoColor)
			return nil
		},
	}
}

func newSchemaTablesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the registered tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			table := ui.NewTable(cmd.OutOrStdout(), []string{"TABLE", "KEY", "COLUMNS", "RELATIONSHIPS"}, color.NoColor)
			for _, name := range s.registry.Tables() {
				e, _ := s.registry.Lookup(name)

				rels := make([]string, 0, len(e.Relationships))
				for _, rel := range e.Relationships {
					desc := rel.Field + "→" + rel.MapsTo
					if rel.InsertOnly {
						desc += " (insert only)"
					}
					rels = append(rels, desc)
				}

				key := strings.Join(e.KeyFields(), ",")
				if e.IsResolver() {
					key += " (link)"
				}
				table.AddRow(name, key, strings.Join(e.Columns(), ","), strings.Join(rels, ", "))
			}
			table.Render()
			return nil
		},
	}
}

func newSchemaPlanCommand(opts *globalOptions) *cobra.Command {
	var where string

	cmd := &cobra.Command{
		Use:   "plan <table>",
		Short: "Show the SELECT used to read a table with its children",
		Example: `  worm schema plan post
  worm schema plan post --where 'post.id=$1'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.entity(args[0])
			if err != nil {
				return err
			}

			plan, err := joins.Compose(s.registry, e)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ui.Header(out, "Joins", color.NoColor)
			if len(plan.Joins) == 0 {
				fmt.Fprintln(out, "  (none)")
			}
			for _, j := range plan.Joins {
				fmt.Fprintf(out, "  %s\n", j)
			}
			fmt.Fprintln(out)

			ui.Header(out, "Statement", color.NoColor)
			fmt.Fprintln(out, storage.BuildSelect(e.Table, storage.SelectQuery{
				Fields: plan.Fields,
				Joins:  plan.Joins,
				Where:  where,
			}))
			return nil
		},
	}

	cmd.Flags().StringVar(&where, "where", "", "WHERE clause to include")
	return cmd
}
