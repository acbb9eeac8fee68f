// Package cli implements the wsctl command tree.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-tenant-client/apierror"
	"github.com/jrsteele09/go-tenant-client/auth"
	"github.com/jrsteele09/go-tenant-client/client"
	"github.com/jrsteele09/go-tenant-client/credentials"
	"github.com/jrsteele09/go-tenant-client/credentials/filestorage"
	"github.com/jrsteele09/go-tenant-client/internal/config"
	"github.com/jrsteele09/go-tenant-client/internal/logging"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

var (
	// version is set at build time with -ldflags "-X ...cli.version=v1.2.3".
	version = "dev"

	// appFs holds the credential and workspace files. Tests swap in a
	// memory filesystem.
	appFs afero.Fs = afero.NewOsFs()
)

type rootOptions struct {
	configFile string
	apiURL     string
	logLevel   string

	cfg     config.Config
	client  *client.Client
	session *auth.Session
}

// Execute runs wsctl with os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "wsctl",
		Short: "Call a workspace-scoped API from the command line",
		Long: `wsctl signs in to the API, remembers the active workspace and sends
authenticated requests scoped to it. Expired sessions are renewed
automatically.

Examples:
  wsctl login --email jane@example.com
  wsctl workspaces list
  wsctl workspaces use ws-2
  wsctl request GET /workspaces/ws-2/secrets?page=1`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (yaml, toml or json)")
	flags.StringVar(&opts.apiURL, "api-url", "", "API base URL, overrides API_BASE_URL")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newWorkspacesCmd(opts),
		newRequestCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	if o.apiURL != "" {
		config.Set(cfg, config.KeyBaseURL, o.apiURL)
	}
	if o.logLevel != "" {
		config.Set(cfg, config.KeyLogLevel, o.logLevel)
	}
	logger := logging.Init(cmd.ErrOrStderr(), cfg.GetLogLevel(), true)

	store := credentials.NewStore(
		filestorage.New(appFs, cfg.GetCredentialsFile()),
		credentials.NewMemoryStorage(),
		credentials.WithLogger(logger),
	)
	c, err := client.NewFromConfig(cfg,
		client.WithCredentials(store),
		client.WithTenantStorage(tenants.NewFileStorage(appFs, cfg.GetWorkspaceFile())),
		client.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.client = c
	o.session = auth.NewSession(c, auth.WithLogger(logger))
	return nil
}

// userError turns an API failure into the message a user should see,
// localized from $LANG when the backend provided one.
func userError(err error) error {
	apiErr, ok := apierror.As(err)
	if !ok {
		return err
	}
	if apiErr.IsNetwork() {
		return fmt.Errorf("cannot reach the API: %w", apiErr.Err)
	}
	msg := apiErr.LocalizedMessage(language(), apiErr.Error())
	if apiErr.IsUnauthorized() {
		msg += "; run 'wsctl login'"
	}
	return errors.New(msg)
}

func language() string {
	lang := os.Getenv("LANG")
	if i := strings.IndexAny(lang, "_.-"); i > 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}
