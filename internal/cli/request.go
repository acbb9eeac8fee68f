package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-tenant-client/client"
)

type requestOptions struct {
	data      string
	workspace string
	noAuth    bool
}

func newRequestCmd(root *rootOptions) *cobra.Command {
	opts := &requestOptions{}
	cmd := &cobra.Command{
		Use:   "request <method> <path>",
		Short: "Send a request and print the response data",
		Long: `Send a request to the API as the signed-in account, scoped to the
active workspace, and print the response data as JSON.

Examples:
  wsctl request GET /workspaces
  wsctl request POST /workspaces/ws-1/secrets --data '{"name":"db"}'
  wsctl request GET /workspaces/ws-2/secrets --workspace ws-2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, root, opts, args[0], args[1])
		},
	}
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON request body")
	cmd.Flags().StringVarP(&opts.workspace, "workspace", "w", "", "workspace id for this request only")
	cmd.Flags().BoolVar(&opts.noAuth, "no-auth", false, "send without credentials")
	return cmd
}

func runRequest(cmd *cobra.Command, root *rootOptions, opts *requestOptions, method, path string) error {
	reqOpts := []client.RequestOption{client.WithMethod(method)}
	if opts.data != "" {
		if !json.Valid([]byte(opts.data)) {
			return fmt.Errorf("--data is not valid JSON")
		}
		reqOpts = append(reqOpts, client.WithRawBody(strings.NewReader(opts.data), "application/json"))
	}
	if opts.workspace != "" {
		reqOpts = append(reqOpts, client.WithTenant(opts.workspace))
	}
	if opts.noAuth {
		reqOpts = append(reqOpts, client.SkipAuth())
	}

	raw, err := root.client.Request(cmd.Context(), path, reqOpts...)
	if err != nil {
		return userError(err)
	}
	if raw == nil {
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}
