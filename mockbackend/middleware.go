package mockbackend

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jrsteele09/go-tenant-client/envelope"
	"github.com/jrsteele09/go-tenant-client/mockbackend/users"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

type contextKey string

const userContextKey contextKey = "user"

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) middleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chained := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
	}
	return append(chained, mw...)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("recovered from panic")
				envelope.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next(w, r)
	}
}

// RequireAccessToken rejects requests without a valid, current bearer token
// with 401 and puts the caller's account in the request context.
func (s *Server) RequireAccessToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", "Autenticação necessária")
			return
		}
		claims, err := s.signer.verify(token, NowTimeFunc())
		if err != nil || claims.Generation != s.generation.Load() {
			writeError(w, http.StatusUnauthorized, "token_expired", "Session expired", "Sessão expirada")
			return
		}
		user, err := s.users.GetByID(claims.Subject)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", "Autenticação necessária")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	}
}

// RequireWorkspace checks that the x-workspace-id header names the workspace
// in the path and that the caller belongs to it.
func (s *Server) RequireWorkspace(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if header := r.Header.Get(tenants.HeaderName); header != id {
			writeError(w, http.StatusBadRequest, "workspace_mismatch", "Workspace header does not match the requested workspace", "")
			return
		}
		if _, err := s.workspace.Get(id); err != nil {
			writeError(w, http.StatusNotFound, "not_found", "Workspace not found", "Workspace não encontrado")
			return
		}
		if !userFrom(r).IsMember(id) {
			writeError(w, http.StatusForbidden, "forbidden", "You are not a member of this workspace", "")
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func userFrom(r *http.Request) *users.User {
	user, _ := r.Context().Value(userContextKey).(*users.User)
	return user
}

func writeError(w http.ResponseWriter, status int, code, en, pt string) {
	i18n := map[string]string{"en": en}
	if pt != "" {
		i18n["pt"] = pt
	}
	envelope.WriteError(w, status, code, en, i18n)
}
