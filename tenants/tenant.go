// Package tenants tracks which workspace the client is acting in. The
// selected workspace id is persisted and mirrored into a workspace_id cookie
// so server-rendered pages sharing the cookie jar can read it.
package tenants

// Tenant is a workspace the signed-in account can act in, as listed by
// GET /workspaces.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
	Role string `json:"role,omitempty"` // "owner", "admin" or "member"
}

const (
	// CookieName carries the workspace id to the backend and to
	// server-side renders.
	CookieName = "workspace_id"
	// HeaderName carries the workspace id on dispatched requests.
	HeaderName = "x-workspace-id"
)
