// Package commands implements the pgward CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/pgward/cli/internal/config"
	"github.com/satishbabariya/pgward/cli/internal/ui"
	"github.com/satishbabariya/pgward/cli/internal/version"
	"github.com/satishbabariya/pgward/migrate"
	"github.com/satishbabariya/pgward/pgdb"
)

// errSilent signals a failure that already produced its own output.
var errSilent = errors.New("silent failure")

// usageError marks errors that should exit with the usage status.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// options carries the shared state every command closes over.
type options struct {
	cfg    *config.Config
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
}

// Execute runs the CLI and returns the process exit code: 0 on
// success, 1 on operational failure, 2 on usage errors.
func Execute() int {
	cfg, err := config.Load()
	if err != nil {
		ui.Errorf(os.Stderr, "load configuration: %v", err)
		return 1
	}

	o := &options{cfg: cfg, fs: config.AppFs, stdout: os.Stdout, stderr: os.Stderr}
	configureLogging(cfg.LogLevel, o.stderr)

	root := NewRootCommand(o)
	if err := root.Execute(); err != nil {
		var ue *usageError
		switch {
		case errors.Is(err, errSilent):
			return 1
		case errors.As(err, &ue):
			return 2
		default:
			ui.Errorf(o.stderr, "%v", err)
			return 1
		}
	}
	return 0
}

// NewRootCommand builds the root command and its whole tree.
func NewRootCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pgward",
		Short:         "PostgreSQL schema migration tool",
		Long:          "pgward manages plain-SQL schema migrations for PostgreSQL",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&o.cfg.ProjectDir, "project-directory", "p", o.cfg.ProjectDir,
		"migration project directory (env: $PGWARD_PROJECT_DIRECTORY)")
	cmd.PersistentFlags().StringVarP(&o.cfg.Database, "database", "d", o.cfg.Database,
		"database name (env: $PGDATABASE)")
	cmd.PersistentFlags().StringVar(&o.cfg.VersionTable, "schema-version-table", o.cfg.VersionTable,
		"table (optionally schema-qualified) in which to store applied schema versions")
	cmd.PersistentFlags().DurationVar(&o.cfg.WaitTimeout, "wait-timeout", o.cfg.WaitTimeout,
		"how long to wait for a database connection")
	cmd.PersistentFlags().StringSliceVar(&o.cfg.FixtureDirs, "fixture-dir", o.cfg.FixtureDirs,
		"extra directories to search for fixtures; later directories win on name collision")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	cmd.AddCommand(newInitCommand(o))
	cmd.AddCommand(newNewCommand(o))
	cmd.AddCommand(newCreateDBCommand(o))
	cmd.AddCommand(newDropDBCommand(o))
	cmd.AddCommand(newPendingCommand(o))
	cmd.AddCommand(newCurrentVersionCommand(o))
	cmd.AddCommand(newLoadSchemaCommand(o))
	cmd.AddCommand(newMigrateCommand(o))
	cmd.AddCommand(newRollbackCommand(o))
	cmd.AddCommand(newUpCommand(o))
	cmd.AddCommand(newVerifyCommand(o))
	cmd.AddCommand(newFixturesCommand(o))
	cmd.AddCommand(newLoadFixtureCommand(o))
	cmd.AddCommand(newExecuteCommand(o))
	cmd.AddCommand(newVersionCommand(o))

	return cmd
}

func configureLogging(level string, w io.Writer) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})))
}

// openProject opens the configured project directory.
func (o *options) openProject() (*migrate.Project, error) {
	return migrate.OpenProject(o.fs, o.cfg.ProjectDir,
		migrate.WithFixtureDirs(o.cfg.FixtureDirs...))
}

// versionStore builds the store for the configured version table.
func (o *options) versionStore() (migrate.VersionStore, error) {
	if err := migrate.ValidateVersionTable(o.cfg.VersionTable); err != nil {
		return migrate.VersionStore{}, err
	}
	return migrate.NewVersionStore(o.cfg.VersionTable), nil
}

// connect opens a connection to the configured database, retrying until
// the wait timeout expires. Postgres may still be starting when the
// tool runs, typically in CI.
func (o *options) connect(ctx context.Context) (*pgx.Conn, error) {
	deadline := time.Now().Add(o.cfg.WaitTimeout)
	for {
		conn, err := pgdb.Connect(ctx, o.cfg.Database)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("database not reachable within %s: %w", o.cfg.WaitTimeout, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// engine opens the project and builds an engine over it.
func (o *options) engine() (*migrate.Project, *migrate.Engine, error) {
	project, err := o.openProject()
	if err != nil {
		return nil, nil, err
	}
	store, err := o.versionStore()
	if err != nil {
		return nil, nil, err
	}
	return project, migrate.NewEngine(project.Graph, store), nil
}
