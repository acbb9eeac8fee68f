package mockbackend

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/jrsteele09/go-tenant-client/credentials"
	"github.com/jrsteele09/go-tenant-client/envelope"
	"github.com/jrsteele09/go-tenant-client/mockbackend/users"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Profile is the account as returned by GET /auth/me.
type Profile struct {
	ID         string             `json:"id"`
	Email      string             `json:"email"`
	Name       string             `json:"name"`
	Workspaces []users.Membership `json:"workspaces"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		user, err := s.users.GetByEmail(strings.TrimSpace(req.Email))
		if err != nil || !user.CheckPassword(req.Password) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", "E-mail ou senha inválidos")
			return
		}
		s.issue(w, http.StatusOK, user)
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if _, err := mail.ParseAddress(req.Email); err != nil || strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "A name and a valid email are required", "")
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			writeError(w, http.StatusBadRequest, "weak_password", err.Error(), "")
			return
		}
		if _, err := s.users.GetByEmail(strings.TrimSpace(req.Email)); err == nil {
			writeError(w, http.StatusConflict, "email_in_use", "Email already registered", "E-mail já cadastrado")
			return
		}
		hash, err := users.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
			return
		}

		now := NowTimeFunc().UTC()
		personal := &tenants.Tenant{Name: strings.TrimSpace(req.Name) + "'s workspace"}
		if err := s.workspace.Upsert(personal); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
			return
		}
		user := &users.User{
			Email:        strings.TrimSpace(req.Email),
			Name:         strings.TrimSpace(req.Name),
			PasswordHash: hash,
			DateJoined:   now,
			LastLogin:    now,
			Workspaces:   []users.Membership{{WorkspaceID: personal.ID, Role: users.RoleOwner, JoinedAt: now}},
		}
		if err := s.users.Upsert(user); err != nil {
			if errors.Is(err, users.ErrEmailInUse) {
				writeError(w, http.StatusConflict, "email_in_use", "Email already registered", "E-mail já cadastrado")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
			return
		}
		s.issue(w, http.StatusCreated, user)
	}
}

// RefreshHandler rotates the refresh token from the refresh_token cookie.
// The request has no body and no Authorization header.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)

		cookie, err := r.Cookie(RefreshTokenCookie)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "refresh_missing", "Session expired", "Sessão expirada")
			return
		}
		userID, next, err := s.refresh.Rotate(cookie.Value)
		if err != nil {
			s.logger.Info().Err(err).Msg("refresh rejected")
			writeError(w, http.StatusUnauthorized, "refresh_invalid", "Session expired", "Sessão expirada")
			return
		}
		user, err := s.users.GetByID(userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "refresh_invalid", "Session expired", "Sessão expirada")
			return
		}
		s.respondWithPair(w, http.StatusOK, user, next)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
			_ = s.refresh.Revoke(cookie.Value)
		}
		expire(w, AccessTokenCookie, "/")
		expire(w, RefreshTokenCookie, "/auth")
		http.SetCookie(w, tenants.ExpiredCookie())
		envelope.Write(w, &envelope.Envelope{StatusCode: http.StatusNoContent})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		envelope.WriteData(w, http.StatusOK, Profile{
			ID:         user.ID,
			Email:      user.Email,
			Name:       user.Name,
			Workspaces: user.Workspaces,
		})
	}
}

// ForgotPasswordHandler always answers 204 so the endpoint cannot be used
// to probe for registered addresses.
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgotPasswordRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if user, err := s.users.GetByEmail(strings.TrimSpace(req.Email)); err == nil {
			token := randomToken()
			s.resetTokensMu.Lock()
			s.resetTokens[token] = user.ID
			s.resetTokensMu.Unlock()
			s.logger.Info().Str("user_id", user.ID).Msg("password reset requested")
		}
		envelope.Write(w, &envelope.Envelope{StatusCode: http.StatusNoContent})
	}
}

func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetPasswordRequest
		if !decodeBody(w, r, &req) {
			return
		}

		s.resetTokensMu.Lock()
		userID, ok := s.resetTokens[req.Token]
		s.resetTokensMu.Unlock()
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_reset_token", "Reset link is invalid or has expired", "Link de redefinição inválido ou expirado")
			return
		}
		if err := users.ValidatePasswordStrength(req.Password); err != nil {
			writeError(w, http.StatusBadRequest, "weak_password", err.Error(), "")
			return
		}
		user, err := s.users.GetByID(userID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_reset_token", "Reset link is invalid or has expired", "")
			return
		}
		hash, err := users.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
			return
		}

		s.resetTokensMu.Lock()
		delete(s.resetTokens, req.Token)
		s.resetTokensMu.Unlock()

		updated := *user
		updated.PasswordHash = hash
		if err := s.users.Upsert(&updated); err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
			return
		}
		envelope.Write(w, &envelope.Envelope{StatusCode: http.StatusNoContent})
	}
}

func (s *Server) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Route not found", "Rota não encontrada")
	}
}

// issue starts a session for user: a fresh pair in the body and matching
// cookies for clients that rely on them.
func (s *Server) issue(w http.ResponseWriter, status int, user *users.User) {
	refreshToken, err := s.refresh.Create(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
		return
	}
	s.respondWithPair(w, status, user, refreshToken)
}

func (s *Server) respondWithPair(w http.ResponseWriter, status int, user *users.User, refreshToken string) {
	accessToken, err := s.signer.sign(user.ID, user.Email, s.generation.Load(), NowTimeFunc(), s.accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", "")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    refreshToken,
		Path:     "/auth",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	envelope.WriteData(w, status, credentials.Pair{AccessToken: accessToken, RefreshToken: refreshToken})
}

func expire(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON", "")
		return false
	}
	return true
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
