package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newWorkspacesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspaces",
		Aliases: []string{"ws"},
		Short:   "List and switch workspaces",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your workspaces; * marks the active one",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				list, err := root.session.ListWorkspaces(cmd.Context())
				if err != nil {
					return userError(err)
				}
				active, _ := root.client.Tenant().Get()
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "\tID\tNAME\tROLE")
				for _, ws := range list {
					marker := ""
					if ws.ID == active {
						marker = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, ws.ID, ws.Name, ws.Role)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "use <workspace-id>",
			Short: "Make a workspace active",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ws, err := root.session.SwitchWorkspace(cmd.Context(), args[0])
				if err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Active workspace: %s (%s)\n", ws.Name, ws.ID)
				return nil
			},
		},
	)
	return cmd
}
