// Package workspaces stores the mock backend's workspaces and the secrets
// listed under each one.
package workspaces

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jrsteele09/go-tenant-client/tenants"
)

var ErrNotFound = errors.New("not found")

// Secret is a named item scoped to a workspace.
type Secret struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Page is one page of a workspace listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type Repo interface {
	Upsert(workspace *tenants.Tenant) error
	Get(id string) (*tenants.Tenant, error)
	List() ([]*tenants.Tenant, error)
	AddSecret(workspaceID, name string) (*Secret, error)
	DeleteSecret(workspaceID, secretID string) error
	ListSecrets(workspaceID string, offset, limit int) (Page[Secret], error)
}

var _ Repo = (*MemoryRepo)(nil)

type MemoryRepo struct {
	workspaces map[string]*tenants.Tenant
	secrets    map[string][]Secret
	lock       sync.RWMutex
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		workspaces: make(map[string]*tenants.Tenant),
		secrets:    make(map[string][]Secret),
	}
}

func (r *MemoryRepo) Upsert(workspace *tenants.Tenant) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if workspace.ID == "" {
		workspace.ID = uuid.NewString()
	}
	r.workspaces[workspace.ID] = workspace
	return nil
}

func (r *MemoryRepo) Get(id string) (*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	ws, ok := r.workspaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ws, nil
}

func (r *MemoryRepo) List() ([]*tenants.Tenant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*tenants.Tenant, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) AddSecret(workspaceID, name string) (*Secret, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.workspaces[workspaceID]; !ok {
		return nil, ErrNotFound
	}
	s := Secret{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	r.secrets[workspaceID] = append(r.secrets[workspaceID], s)
	return &s, nil
}

func (r *MemoryRepo) DeleteSecret(workspaceID, secretID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	list := r.secrets[workspaceID]
	for i, s := range list {
		if s.ID == secretID {
			r.secrets[workspaceID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ListSecrets returns the secrets in insertion order. An offset past the end
// yields an empty page with the full total.
func (r *MemoryRepo) ListSecrets(workspaceID string, offset, limit int) (Page[Secret], error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if _, ok := r.workspaces[workspaceID]; !ok {
		return Page[Secret]{}, ErrNotFound
	}

	all := r.secrets[workspaceID]
	page := Page[Secret]{Items: []Secret{}, Total: len(all)}
	if offset >= len(all) {
		return page, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page.Items = append(page.Items, all[offset:end]...)
	return page, nil
}
