// Package auth is the account layer on top of the request dispatcher:
// signing in and out, registration, password reset and choosing the active
// workspace.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tenant-client/apierror"
	"github.com/jrsteele09/go-tenant-client/client"
	"github.com/jrsteele09/go-tenant-client/credentials"
	clienterrors "github.com/jrsteele09/go-tenant-client/internal/errors"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

const (
	RouteLogin          = "/auth/login"
	RouteRegister       = "/auth/register"
	RouteLogout         = "/auth/logout"
	RouteMe             = "/auth/me"
	RouteForgotPassword = "/auth/forgot-password"
	RouteResetPassword  = "/auth/reset-password"
	RouteWorkspaces     = "/workspaces"
)

// Membership is the caller's role in one workspace.
type Membership struct {
	WorkspaceID string    `json:"workspaceId"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// User is the signed-in account as returned by GET /auth/me.
type User struct {
	ID         string       `json:"id"`
	Email      string       `json:"email"`
	Name       string       `json:"name"`
	Workspaces []Membership `json:"workspaces"`
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session drives account operations through c. Creating a Session installs
// the renewal failure policy on c: when a session cannot be renewed the
// stored credentials and the active workspace are cleared, so the next
// command starts signed out.
type Session struct {
	client    *client.Client
	validator *Validator
	logger    zerolog.Logger
}

type SessionOption func(*Session)

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

func NewSession(c *client.Client, options ...SessionOption) *Session {
	s := &Session{
		client:    c,
		validator: NewValidator(),
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "auth").Logger()
	c.Renewer().SetFailureHook(s.onRenewalFailure)
	return s
}

func (s *Session) onRenewalFailure(err *apierror.Error) {
	s.logger.Warn().Err(err).Msg("session could not be renewed, signing out")
	s.client.Credentials().Clear()
	s.client.Tenant().Clear()
}

// IsAuthenticated reports whether a credential pair is stored. The pair may
// still be rejected by the backend.
func (s *Session) IsAuthenticated() bool {
	_, ok := s.client.Credentials().Get()
	return ok
}

// Login signs in and stores the issued pair. remember selects the durable
// tier.
func (s *Session) Login(ctx context.Context, email, password string, remember bool) (credentials.Pair, error) {
	if err := s.validator.ValidateCredentials(email, password); err != nil {
		return credentials.Pair{}, err
	}
	pair, err := client.Post[credentials.Pair](ctx, s.client, RouteLogin,
		map[string]string{"email": strings.TrimSpace(email), "password": password},
		client.SkipAuth())
	if err != nil {
		return credentials.Pair{}, err
	}
	s.client.Credentials().Set(pair, remember)
	s.logger.Info().Bool("remember", remember).Msg("signed in")
	return pair, nil
}

// Register creates an account and signs in as it.
func (s *Session) Register(ctx context.Context, input RegisterInput, remember bool) (credentials.Pair, error) {
	if err := s.validator.ValidateRegistration(input); err != nil {
		return credentials.Pair{}, err
	}
	input.Email = strings.TrimSpace(input.Email)
	pair, err := client.Post[credentials.Pair](ctx, s.client, RouteRegister, input, client.SkipAuth())
	if err != nil {
		return credentials.Pair{}, err
	}
	s.client.Credentials().Set(pair, remember)
	s.logger.Info().Msg("account registered")
	return pair, nil
}

func (s *Session) ForgotPassword(ctx context.Context, email string) error {
	if err := s.validator.ValidateEmail(email); err != nil {
		return err
	}
	_, err := client.Post[client.Empty](ctx, s.client, RouteForgotPassword,
		map[string]string{"email": strings.TrimSpace(email)}, client.SkipAuth())
	return err
}

func (s *Session) ResetPassword(ctx context.Context, token, password string) error {
	if err := s.validator.ValidateReset(token, password); err != nil {
		return err
	}
	_, err := client.Post[client.Empty](ctx, s.client, RouteResetPassword,
		map[string]string{"token": token, "password": password}, client.SkipAuth())
	return err
}

// Logout tells the backend to end the session, then clears local state
// whether or not the backend call succeeded. The call carries the current
// token but never triggers a renewal.
func (s *Session) Logout(ctx context.Context) error {
	var err error
	if pair, ok := s.client.Credentials().Get(); ok {
		_, err = s.client.Request(ctx, RouteLogout,
			client.WithMethod(http.MethodPost),
			client.SkipAuth(),
			client.WithHeader("Authorization", "Bearer "+pair.AccessToken))
		if err != nil {
			s.logger.Warn().Err(err).Msg("backend logout failed, clearing local session anyway")
		}
	}
	s.client.Credentials().Clear()
	s.client.Tenant().Clear()
	s.logger.Info().Msg("signed out")
	return err
}

func (s *Session) Me(ctx context.Context) (User, error) {
	return client.Get[User](ctx, s.client, RouteMe)
}

func (s *Session) ListWorkspaces(ctx context.Context) ([]tenants.Tenant, error) {
	return client.Get[[]tenants.Tenant](ctx, s.client, RouteWorkspaces)
}

// SelectInitialWorkspace keeps the active workspace if the account still
// belongs to it, otherwise activates the first workspace listed.
func (s *Session) SelectInitialWorkspace(ctx context.Context) (tenants.Tenant, error) {
	list, err := s.ListWorkspaces(ctx)
	if err != nil {
		return tenants.Tenant{}, err
	}
	if len(list) == 0 {
		s.client.Tenant().Clear()
		return tenants.Tenant{}, clienterrors.ErrNoWorkspaces
	}
	if current, ok := s.client.Tenant().Get(); ok {
		for _, ws := range list {
			if ws.ID == current {
				return ws, nil
			}
		}
		s.logger.Info().Str("workspace_id", current).Msg("stored workspace no longer available")
	}
	s.client.Tenant().Set(list[0].ID)
	return list[0], nil
}

// SwitchWorkspace activates id after checking the account belongs to it.
func (s *Session) SwitchWorkspace(ctx context.Context, id string) (tenants.Tenant, error) {
	list, err := s.ListWorkspaces(ctx)
	if err != nil {
		return tenants.Tenant{}, err
	}
	for _, ws := range list {
		if ws.ID == id {
			s.client.Tenant().Set(id)
			return ws, nil
		}
	}
	return tenants.Tenant{}, clienterrors.Wrapf(clienterrors.ErrUnknownWorkspace, "workspace %q", id)
}
