package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/pgward/cli/internal/ui"
	"github.com/satishbabariya/pgward/migrate"
)

func newInitCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new migration project",
		Long:  "Create the schema.sql file and the migrations, fixtures, and tests directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := migrate.NewProject(o.fs, o.cfg.ProjectDir); err != nil {
				return err
			}
			ui.Successf(o.stdout, "initialized project in %s", o.cfg.ProjectDir)
			return nil
		},
	}
}

func newNewCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "new <migration-name>",
		Short: "Create a new migration with the given name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := o.openProject()
			if err != nil {
				return err
			}
			m, err := project.NewMigration(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(o.stdout, m.Up.Path)
			fmt.Fprintln(o.stdout, m.Down.Path)
			return nil
		},
	}
}

func newFixturesCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fixtures",
		Short: "List the available fixtures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := o.openProject()
			if err != nil {
				return err
			}
			for _, name := range project.FixtureNames() {
				fmt.Fprintln(o.stdout, name)
			}
			return nil
		},
	}
}

func newLoadFixtureCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load-fixture <fixture-name>",
		Short: "Load a fixture into a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := o.openProject()
			if err != nil {
				return err
			}
			fixture, err := project.Fixture(args[0])
			if err != nil {
				return err
			}
			conn, err := o.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close(cmd.Context())
			return migrate.RunSQLFile(cmd.Context(), conn, fixture)
		},
	}
}
