package commands

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wormsql/worm/internal/cli/ui"
	"github.com/wormsql/worm/internal/orm/crud"
	"github.com/wormsql/worm/internal/orm/storage"
	"github.com/wormsql/worm/internal/orm/validation"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globalOptions holds the persistent flags shared by every command
type globalOptions struct {
	configPath string
	noColor    bool
	debug      bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "worm",
		Short: "Schema-driven mapping between records and SQL tables",
		Long: color.CyanString(`worm - schema-driven object-relational mapping

Entities are declared in YAML. worm reads whole entity trees with a single
joined SELECT and saves them back through their relationships.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./worm.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log every SQL statement")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewSchemaCommand(opts))
	rootCmd.AddCommand(NewGetCommand(opts))
	rootCmd.AddCommand(NewListCommand(opts))
	rootCmd.AddCommand(NewCountCommand(opts))
	rootCmd.AddCommand(NewSaveCommand(opts))
	rootCmd.AddCommand(NewDBCommand(opts))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("worm version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		renderError(rootCmd.ErrOrStderr(), err)
		return err
	}
	return nil
}

// renderError prints err in the most specific form available
func renderError(w io.Writer, err error) {
	noColor := color.NoColor

	var unknown *unknownTableError
	var invalid *crud.ValidationError
	var cfgErr *configError

	switch {
	case errors.As(err, &unknown):
		fmt.Fprint(w, ui.UnknownTableError(unknown.table, unknown.suggestions, noColor))
	case errors.As(err, &invalid):
		collected := validation.Collect(invalid.Errors)
		var messages []string
		for _, field := range sortedFields(collected.Fields) {
			for _, msg := range collected.Fields[field] {
				messages = append(messages, field+": "+msg)
			}
		}
		fmt.Fprint(w, ui.ValidationFailedError(invalid.Table, messages, noColor))
	case errors.As(err, &cfgErr):
		fmt.Fprint(w, ui.ConfigError(cfgErr.Error(), noColor))
	case errors.Is(err, storage.ErrStorageFailure):
		fmt.Fprint(w, ui.StorageError(err.Error(), storage.Code(err), noColor))
	default:
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(w, "Error: %v\n", err)
	}
}
