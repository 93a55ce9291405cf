package commands

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wormsql/worm/internal/cli/ui"
	"github.com/wormsql/worm/internal/orm/transaction"
)

// NewSaveCommand creates the save command
func NewSaveCommand(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "save <table> [file]",
		Short: "Save a record and its children in one transaction",
		Long: `Save a record read from a YAML or JSON file (or stdin when the file is "-"
or omitted). Records with a key are updated, records without one are inserted,
and every relationship present in the record is saved after it.

The whole save runs in a single transaction that is retried on deadlocks.`,
		Example: `  worm save post post.yaml
  echo '{"title": "hello", "comments": []}' | worm save post`,
		Args: cobra.RangeArgs(1, 2),
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

			path := "-"
			if len(args) == 2 {
				path = args[1]
			}
			record, err := readRecord(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}

			engine := s.engine()
			mgr := transaction.NewManager(s.db, transaction.WithLogger(s.logger.Named("tx")))
			level := transaction.ParseIsolationLevel(s.cfg.Database.Isolation)

			var saved map[string]interface{}
			err = mgr.WithRetry(cmd.Context(), level, func(tx *sql.Tx) error {
				saved, err = engine.Save(cmd.Context(), tx, e.Table, record)
				return err
			})
			if err != nil {
				return err
			}

			s.logger.Info("record saved", zap.String("table", e.Table), zap.Any("key", saved[firstKey(e.KeyFields())]))
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), saved)
			}
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("saved %s", e.Table), color.NoColor)
			printRecord(cmd.OutOrStdout(), s.registry, e, saved)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the saved record as JSON")
	return cmd
}

// readRecord decodes one record from path, or from stdin for "-". YAML is a
// superset of JSON so both formats are accepted.
func readRecord(stdin io.Reader, path string) (map[string]interface{}, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open record file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var record map[string]interface{}
	if err := yaml.NewDecoder(r).Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("record is empty")
	}
	return record, nil
}

func firstKey(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}
