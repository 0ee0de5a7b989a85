package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/pgward/cli/internal/version"
)

func newVersionCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pgward version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(o.stdout, version.String())
			return nil
		},
	}
}
