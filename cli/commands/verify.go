package commands

import (
	"github.com/spf13/cobra"

	"github.com/satishbabariya/pgward/cli/internal/ui"
	"github.com/satishbabariya/pgward/migrate"
	"github.com/satishbabariya/pgward/pgdump"
)

func newVerifyCommand(o *options) *cobra.Command {
	var pgDumpPath string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that schema.sql and the migrations produce the same database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := o.openProject()
			if err != nil {
				return err
			}
			store, err := o.versionStore()
			if err != nil {
				return err
			}

			verifier := migrate.NewVerifier(project, store, pgdump.Client{Path: pgDumpPath})
			diff, err := verifier.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if diff != "" {
				ui.Diff(o.stderr, diff)
				return errSilent
			}
			ui.Successf(o.stdout, "schema and migrations match")
			return nil
		},
	}
	cmd.Flags().StringVar(&pgDumpPath, "pg-dump", o.cfg.PgDump,
		"path to the pg_dump executable or name to look up on PATH (env: $PGWARD_PG_DUMP)")
	return cmd
}
