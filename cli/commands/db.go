package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/pgward/cli/internal/ui"
	"github.com/satishbabariya/pgward/pgdb"
)

func newCreateDBCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create-db",
		Short: "Create the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabase(o); err != nil {
				return err
			}
			if err := pgdb.CreateDatabase(cmd.Context(), o.cfg.Database); err != nil {
				return err
			}
			ui.Successf(o.stdout, "created database %s", o.cfg.Database)
			return nil
		},
	}
}

func newDropDBCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "drop-db",
		Short: "Drop the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabase(o); err != nil {
				return err
			}
			if err := pgdb.DropDatabase(cmd.Context(), o.cfg.Database); err != nil {
				return err
			}
			ui.Successf(o.stdout, "dropped database %s", o.cfg.Database)
			return nil
		},
	}
}

func newExecuteCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <sql-file>",
		Short: "Execute a SQL file against the database",
		Long:  "Execute the given SQL file, or standard input when the file is '-'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQLArg(o.fs, cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(sql) == "" {
				return nil
			}
			conn, err := o.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close(cmd.Context())
			if _, err := conn.Exec(cmd.Context(), sql); err != nil {
				return fmt.Errorf("execute %s: %w", args[0], err)
			}
			return nil
		},
	}
}

func readSQLArg(fsys afero.Fs, stdin io.Reader, arg string) (string, error) {
	if arg == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := afero.ReadFile(fsys, arg)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", arg, err)
	}
	return string(b), nil
}

func requireDatabase(o *options) error {
	if o.cfg.Database == "" {
		return &usageError{err: fmt.Errorf("no database name: set --database or $PGDATABASE")}
	}
	return nil
}
