package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/pgward/cli/internal/ui"
	"github.com/satishbabariya/pgward/migrate"
	"github.com/satishbabariya/pgward/pgdb"
)

// applyFlags are the coordinator knobs shared by migrate, rollback, and
// up.
type applyFlags struct {
	target             string
	noLock             bool
	lockTimeout        string
	revokeConnectRoles []string
	forceCloseSessions bool
}

func (f *applyFlags) register(cmd *cobra.Command, targetDefault string) {
	if targetDefault != "" {
		cmd.Flags().StringVar(&f.target, "target", targetDefault, "target migration ID")
	}
	cmd.Flags().BoolVar(&f.noLock, "no-lock", false, "skip the migration advisory lock")
	cmd.Flags().StringSliceVar(&f.revokeConnectRoles, "revoke-connect", nil,
		"revoke connect from these roles and drain their sessions before migrating")
	cmd.Flags().BoolVar(&f.forceCloseSessions, "force-close-sessions", false,
		"terminate sessions that do not drain instead of failing")
}

func (f *applyFlags) config(target *int, direction migrate.Direction) migrate.ApplyConfig {
	cfg := migrate.DefaultApplyConfig()
	cfg.Target = target
	cfg.Direction = direction
	cfg.UseLock = !f.noLock
	cfg.RevokeConnectRoles = f.revokeConnectRoles
	if f.forceCloseSessions {
		timeout := 10 * time.Second
		cfg.ForceCloseTimeout = &timeout
	}
	return cfg
}

// parseTarget turns the --target value into a version pointer; the
// default label means nil (resolved per command).
func parseTarget(val, defaultLabel string) (*int, error) {
	if val == defaultLabel {
		return nil, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return nil, &usageError{err: fmt.Errorf("invalid --target '%s': must be a non-negative integer", val)}
	}
	return &n, nil
}

func newPendingCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List all unapplied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, engine, err := o.engine()
			if err != nil {
				return err
			}
			conn, err := o.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close(cmd.Context())

			pending, err := engine.Pending(cmd.Context(), conn)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(pending))
			for _, m := range pending {
				rows = append(rows, []string{strconv.Itoa(m.ID), m.Name})
			}
			if len(rows) == 0 {
				return nil
			}
			return ui.Table(o.stdout, []string{"ID", "Name"}, rows)
		},
	}
}

func newCurrentVersionCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "current-version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := o.versionStore()
			if err != nil {
				return err
			}
			conn, err := o.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close(cmd.Context())

			version, applied, err := store.Current(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if !applied {
				fmt.Fprintln(o.stdout, "none")
				return nil
			}
			fmt.Fprintln(o.stdout, version)
			return nil
		},
	}
}

func newLoadSchemaCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load-schema",
		Short: "Load schema.sql into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, engine, err := o.engine()
			if err != nil {
				return err
			}
			conn, err := o.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close(cmd.Context())
			return engine.LoadSchema(cmd.Context(), conn, project.SchemaFile())
		},
	}
}

func newMigrateCommand(o *options) *cobra.Command {
	var flags applyFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database to the latest (or specified) version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(flags.target, "latest")
			if err != nil {
				return err
			}
			return o.runApply(cmd, flags.config(target, migrate.Up))
		},
	}
	flags.register(cmd, "latest")
	return cmd
}

func newRollbackCommand(o *options) *cobra.Command {
	var flags applyFlags
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Rollback the database to the previous (or specified) version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(flags.target, "last")
			if err != nil {
				return err
			}
			if target == nil {
				resolved, err := o.previousVersion(cmd)
				if err != nil {
					return err
				}
				target = &resolved
			}
			return o.runApply(cmd, flags.config(target, migrate.Down))
		},
	}
	flags.register(cmd, "last")
	return cmd
}

func newUpCommand(o *options) *cobra.Command {
	var flags applyFlags
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Migrate to the latest version, creating the database if necessary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabase(o); err != nil {
				return err
			}
			if err := pgdb.CreateDatabase(cmd.Context(), o.cfg.Database); err != nil && !pgdb.IsDuplicateDatabase(err) {
				return err
			}
			return o.runApply(cmd, flags.config(nil, migrate.Up))
		},
	}
	flags.register(cmd, "")
	return cmd
}

// runApply opens the project, connects, and runs one coordinated
// migration.
func (o *options) runApply(cmd *cobra.Command, cfg migrate.ApplyConfig) error {
	_, engine, err := o.engine()
	if err != nil {
		return err
	}
	conn, err := o.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close(cmd.Context())

	return migrate.NewCoordinator(engine).Apply(cmd.Context(), conn, cfg)
}

// previousVersion resolves the default rollback target: one below the
// currently applied version.
func (o *options) previousVersion(cmd *cobra.Command) (int, error) {
	store, err := o.versionStore()
	if err != nil {
		return 0, err
	}
	conn, err := o.connect(cmd.Context())
	if err != nil {
		return 0, err
	}
	defer conn.Close(cmd.Context())

	current, applied, err := store.Current(cmd.Context(), conn)
	if err != nil {
		return 0, err
	}
	if !applied {
		return 0, migrate.NewError(migrate.KindNoVersion,
			"cannot rollback: database has no applied schema version")
	}
	return current - 1, nil
}
