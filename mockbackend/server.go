// Package mockbackend is an in-memory backend speaking the same envelope,
// cookie and renewal contract as the production API. Integration tests and
// local development run the client against it.
package mockbackend

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tenant-client/mockbackend/refresh"
	"github.com/jrsteele09/go-tenant-client/mockbackend/users"
	"github.com/jrsteele09/go-tenant-client/mockbackend/workspaces"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	RouteLogin          = "/auth/login"
	RouteRegister       = "/auth/register"
	RouteRefresh        = "/auth/refresh"
	RouteLogout         = "/auth/logout"
	RouteMe             = "/auth/me"
	RouteForgotPassword = "/auth/forgot-password"
	RouteResetPassword  = "/auth/reset-password"
	RouteWorkspaces     = "/workspaces"
	RouteSecrets        = "/workspaces/{id}/secrets"
	RouteSecret         = "/workspaces/{id}/secrets/{secretID}"

	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

type Server struct {
	env       string
	mux       *http.ServeMux
	routes    []string
	users     users.Repo
	workspace workspaces.Repo
	refresh   *refresh.Manager
	signer    *hmacSigner
	accessTTL time.Duration
	logger    zerolog.Logger

	generation    atomic.Int64
	refreshCalls  atomic.Int64
	resetTokens   map[string]string // reset token to user id
	resetTokensMu sync.Mutex
}

type Option func(*Server)

func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = ttl
	}
}

func WithSigningSecret(secret string) Option {
	return func(s *Server) {
		s.signer = newHMACSigner(secret, s.signer.issuer)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(options ...Option) *Server {
	s := &Server{
		env:         "DEV",
		mux:         http.NewServeMux(),
		users:       users.NewMemoryRepo(),
		workspace:   workspaces.NewMemoryRepo(),
		refresh:     refresh.NewManager(refresh.NewMemoryRepo(), 30*24*time.Hour),
		signer:      newHMACSigner("mockbackend-dev-secret", "mockbackend"),
		accessTTL:   15 * time.Minute,
		logger:      log.Logger,
		resetTokens: make(map[string]string),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "mockbackend").Logger()
	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	public := s.middleware()
	private := s.middleware(s.RequireAccessToken)
	scoped := s.middleware(s.RequireAccessToken, s.RequireWorkspace)

	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), public...))
	s.RegisterRouteFunc("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), public...))
	s.RegisterRouteFunc("POST "+RouteRefresh, ChainMiddleware(s.RefreshHandler(), public...))
	s.RegisterRouteFunc("POST "+RouteForgotPassword, ChainMiddleware(s.ForgotPasswordHandler(), public...))
	s.RegisterRouteFunc("POST "+RouteResetPassword, ChainMiddleware(s.ResetPasswordHandler(), public...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), private...))
	s.RegisterRouteFunc("GET "+RouteMe, ChainMiddleware(s.MeHandler(), private...))
	s.RegisterRouteFunc("GET "+RouteWorkspaces, ChainMiddleware(s.ListWorkspacesHandler(), private...))
	s.RegisterRouteFunc("GET "+RouteSecrets, ChainMiddleware(s.ListSecretsHandler(), scoped...))
	s.RegisterRouteFunc("POST "+RouteSecrets, ChainMiddleware(s.CreateSecretHandler(), scoped...))
	s.RegisterRouteFunc("DELETE "+RouteSecret, ChainMiddleware(s.DeleteSecretHandler(), scoped...))
	s.RegisterRouteFunc("/", ChainMiddleware(s.NotFoundHandler(), public...))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logger.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route")
		} else {
			s.logger.Debug().Str("path", parts[0]).Msg("route")
		}
	}
}

// SeedUser adds an account that is a member of the given workspaces,
// creating any workspace that does not exist yet.
func (s *Server) SeedUser(email, name, password string, workspaceList ...tenants.Tenant) (*users.User, error) {
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("[mockbackend SeedUser] hash password: %w", err)
	}
	u := &users.User{Email: email, Name: name, PasswordHash: hash, DateJoined: NowTimeFunc().UTC()}
	for i := range workspaceList {
		ws := workspaceList[i]
		if _, err := s.workspace.Get(ws.ID); err != nil {
			if err := s.workspace.Upsert(&ws); err != nil {
				return nil, fmt.Errorf("[mockbackend SeedUser] create workspace: %w", err)
			}
		}
		role := users.Role(ws.Role)
		if role == "" {
			role = users.RoleMember
		}
		u.Workspaces = append(u.Workspaces, users.Membership{WorkspaceID: ws.ID, Role: role, JoinedAt: u.DateJoined})
	}
	if err := s.users.Upsert(u); err != nil {
		return nil, fmt.Errorf("[mockbackend SeedUser] %w", err)
	}
	return u, nil
}

// Workspaces exposes the workspace store so tests can add secrets.
func (s *Server) Workspaces() workspaces.Repo {
	return s.workspace
}

// ExpireAccessTokens makes every access token issued so far fail with 401.
// Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.generation.Add(1)
}

// RefreshCalls counts requests to the refresh endpoint.
func (s *Server) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// ResetTokenFor returns the outstanding password reset token for email, as
// if read from the reset email.
func (s *Server) ResetTokenFor(email string) (string, bool) {
	u, err := s.users.GetByEmail(email)
	if err != nil {
		return "", false
	}
	s.resetTokensMu.Lock()
	defer s.resetTokensMu.Unlock()
	for token, userID := range s.resetTokens {
		if userID == u.ID {
			return token, true
		}
	}
	return "", false
}
