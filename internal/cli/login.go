package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-tenant-client/apierror"
	clienterrors "github.com/jrsteele09/go-tenant-client/internal/errors"
)

type loginOptions struct {
	email      string
	password   string
	noRemember bool
}

func newLoginCmd(root *rootOptions) *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and select a workspace",
		Long: `Sign in with email and password. Missing values are read from stdin.

The session is saved to the credentials file unless --no-remember is
given, in which case it lasts for this command only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.password, "password", "", "account password")
	cmd.Flags().BoolVar(&opts.noRemember, "no-remember", false, "do not save the session")
	return cmd
}

func runLogin(cmd *cobra.Command, root *rootOptions, opts *loginOptions) error {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	email, err := valueOrPrompt(in, out, opts.email, "Email: ")
	if err != nil {
		return err
	}
	password, err := valueOrPrompt(in, out, opts.password, "Password: ")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if _, err := root.session.Login(ctx, email, password, !opts.noRemember); err != nil {
		if apierror.HasCode(err, "invalid_credentials") {
			return errors.New(apierror.Message(err, language(), err.Error()))
		}
		return userError(err)
	}

	ws, err := root.session.SelectInitialWorkspace(ctx)
	if err != nil {
		if clienterrors.Is(err, clienterrors.ErrNoWorkspaces) {
			fmt.Fprintf(out, "Signed in as %s (no workspaces yet)\n", email)
			return nil
		}
		return userError(err)
	}
	fmt.Fprintf(out, "Signed in as %s, workspace %s (%s)\n", email, ws.Name, ws.ID)
	return nil
}

func valueOrPrompt(in *bufio.Reader, out io.Writer, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(out, prompt)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(prompt), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func newLogoutCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the active workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := root.session.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", userError(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account and active workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !root.session.IsAuthenticated() {
				fmt.Fprintln(out, "Not signed in")
				return nil
			}
			me, err := root.session.Me(cmd.Context())
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(out, "%s <%s>\n", me.Name, me.Email)
			fmt.Fprintf(out, "session: %s\n", root.client.Credentials().Mode())
			if id, ok := root.client.Tenant().Get(); ok {
				fmt.Fprintf(out, "workspace: %s\n", id)
			}
			return nil
		},
	}
}
