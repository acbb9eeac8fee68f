package cli

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var banner bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		// Printing the version needs no config or API access.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			if banner {
				fmt.Fprintln(cmd.OutOrStdout(), figure.NewFigure("wsctl", "cybermedium", true).String())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wsctl version %s\n", version)
		},
	}
	cmd.Flags().BoolVar(&banner, "banner", false, "print the banner")
	return cmd
}
