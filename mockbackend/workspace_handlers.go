package mockbackend

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-tenant-client/envelope"
	"github.com/jrsteele09/go-tenant-client/tenants"
)

const defaultPageSize = 20

type createSecretRequest struct {
	Name string `json:"name"`
}

// ListWorkspacesHandler lists the caller's workspaces with their role.
func (s *Server) ListWorkspacesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r)
		out := make([]tenants.Tenant, 0, len(user.Workspaces))
		for _, m := range user.Workspaces {
			ws, err := s.workspace.Get(m.WorkspaceID)
			if err != nil {
				continue
			}
			entry := *ws
			entry.Role = string(m.Role)
			out = append(out, entry)
		}
		envelope.WriteData(w, http.StatusOK, out)
	}
}

// ListSecretsHandler pages through a workspace's secrets with ?page (from 1)
// and ?pageSize.
func (s *Server) ListSecretsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		size := queryInt(r, "pageSize", defaultPageSize)
		if page < 1 || size < 1 {
			writeError(w, http.StatusBadRequest, "validation_error", "page and pageSize must be positive", "")
			return
		}
		result, err := s.workspace.ListSecrets(r.PathValue("id"), (page-1)*size, size)
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found", "Workspace not found", "Workspace não encontrado")
			return
		}
		envelope.WriteData(w, http.StatusOK, result)
	}
}

func (s *Server) CreateSecretHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSecretRequest
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			req.Name = r.FormValue("name")
		} else if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "name is required", "nome é obrigatório")
			return
		}
		secret, err := s.workspace.AddSecret(r.PathValue("id"), req.Name)
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found", "Workspace not found", "Workspace não encontrado")
			return
		}
		envelope.WriteData(w, http.StatusCreated, secret)
	}
}

func (s *Server) DeleteSecretHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.workspace.DeleteSecret(r.PathValue("id"), r.PathValue("secretID")); err != nil {
			writeError(w, http.StatusNotFound, "not_found", "Secret not found", "Segredo não encontrado")
			return
		}
		envelope.Write(w, &envelope.Envelope{StatusCode: http.StatusNoContent})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
