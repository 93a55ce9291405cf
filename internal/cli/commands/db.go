package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/wormsql/worm/internal/cli/config"
	"github.com/wormsql/worm/internal/cli/ui"
	"github.com/wormsql/worm/internal/orm/migrate"
)

const connectTimeout = 10 * time.Second

// openDB opens and pings the configured database
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, &configError{errors.New("database.url is not set (use worm.yaml, WORM_DATABASE_URL or DATABASE_URL)")}
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewDBCommand creates the db command
func NewDBCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database connection and migration commands",
	}
	cmd.AddCommand(newDBPingCommand(opts))
	cmd.AddCommand(newDBMigrateCommand(opts))
	cmd.AddCommand(newDBRollbackCommand(opts))
	cmd.AddCommand(newDBStatusCommand(opts))
	return cmd
}

func newDBPingCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured database is reachable",
		Example: `  # Ping the database from worm.yaml
  worm db ping

  # Ping a database from the environment
  WORM_DATABASE_URL=postgresql://localhost/app worm db ping`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return &configError{err}
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			kv.AddRow("driver", cfg.Database.Driver)

			if cfg.Database.Driver == "sqlite3" {
				db, err := openDB(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer db.Close()

				var version string
				if err := db.QueryRowContext(cmd.Context(), "SELECT sqlite_version()").Scan(&version); err != nil {
					return err
				}
				kv.AddRow("server version", version)
			} else {
				version, err := postgresVersion(cmd.Context(), cfg.Database.URL)
				if err != nil {
					return err
				}
				kv.AddRow("server version", version)
			}

			ui.WriteSuccess(cmd.OutOrStdout(), "database is reachable", color.NoColor)
			kv.Render()
			return nil
		},
	}
}

// postgresVersion connects with pgx directly and reads the server_version parameter
func postgresVersion(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", &configError{errors.New("database.url is not set")}
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if err := conn.Ping(ctx); err != nil {
		return "", fmt.Errorf("failed to ping database: %w", err)
	}
	return conn.PgConn().ParameterStatus("server_version"), nil
}

func newDBMigrateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Long: `Apply every migration in the migrations directory that has not been applied yet.

Migrations are files named <version>_<name>.up.sql with an optional
<version>_<name>.down.sql. Each one runs in its own transaction and is
recorded in the worm_migrations table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			migrations, err := migrate.LoadDir(s.cfg.Migrations.Dir)
			if err != nil {
				return err
			}

			applied, err := migrate.NewRunner(s.db, s.logger.Named("migrate")).Up(cmd.Context(), migrations)
			for _, m := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "  applied %d_%s\n", m.Version, m.Name)
			}
			if err != nil {
				return err
			}

			if len(applied) == 0 {
				ui.WriteSuccess(cmd.OutOrStdout(), "no pending migrations", color.NoColor)
				return nil
			}
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("applied %d migration(s)", len(applied)), color.NoColor)
			return nil
		},
	}
}

func newDBRollbackCommand(opts *globalOptions) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back applied migrations",
		Example: `  worm db rollback
  worm db rollback --steps 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}

			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			rolledBack, err := migrate.NewRunner(s.db, s.logger.Named("migrate")).Down(cmd.Context(), steps)
			for _, m := range rolledBack {
				fmt.Fprintf(cmd.OutOrStdout(), "  rolled back %d_%s\n", m.Version, m.Name)
			}
			if err != nil {
				return err
			}

			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("rolled back %d migration(s)", len(rolledBack)), color.NoColor)
			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newDBStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer s.Close()

			migrations, err := migrate.LoadDir(s.cfg.Migrations.Dir)
			if err != nil {
				return err
			}

			status, err := migrate.NewRunner(s.db, s.logger.Named("migrate")).Status(cmd.Context(), migrations)
			if err != nil {
				return err
			}

			table := ui.NewTable(cmd.OutOrStdout(), []string{"VERSION", "NAME", "APPLIED"}, color.NoColor)
			for _, m := range status.Applied {
				table.AddRow(fmt.Sprint(m.Version), m.Name, ui.FormatValue(m.AppliedAt))
			}
			for _, m := range status.Pending {
				table.AddRow(fmt.Sprint(m.Version), m.Name, "pending")
			}
			table.Render()

			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), status.Summary())
			return nil
		},
	}
}
