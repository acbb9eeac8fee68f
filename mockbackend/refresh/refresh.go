// Package refresh issues and rotates the mock backend's refresh tokens.
// Every token is single-use: rotating it deletes it.
package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var (
	ErrNotFound = errors.New("refresh token not found")
	ErrExpired  = errors.New("refresh token expired")
)

// StoredToken is the server-side record of a refresh token. The client only
// ever sees Token.
type StoredToken struct {
	Token  string
	UserID string
	Iat    time.Time
}

type Repo interface {
	Upsert(token *StoredToken) error
	Delete(token string) error
	Get(token string) (*StoredToken, error)
	// Take returns and deletes the token in one step.
	Take(token string) (*StoredToken, error)
}

var _ Repo = (*MemoryRepo)(nil)

type MemoryRepo struct {
	tokens map[string]*StoredToken
	lock   sync.Mutex
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{tokens: make(map[string]*StoredToken)}
}

func (r *MemoryRepo) Upsert(token *StoredToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.tokens[token.Token] = token
	return nil
}

func (r *MemoryRepo) Delete(token string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.tokens, token)
	return nil
}

func (r *MemoryRepo) Get(token string) (*StoredToken, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	st, ok := r.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	return st, nil
}

func (r *MemoryRepo) Take(token string) (*StoredToken, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	st, ok := r.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.tokens, token)
	return st, nil
}

// Manager creates and rotates refresh tokens.
type Manager struct {
	repo   Repo
	ttl    time.Duration
	length int
}

func NewManager(repo Repo, ttl time.Duration) *Manager {
	return &Manager{repo: repo, ttl: ttl, length: 32}
}

// Create issues a new refresh token for userID.
func (m *Manager) Create(userID string) (string, error) {
	tokenBytes := make([]byte, m.length)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredToken{Token: token, UserID: userID, Iat: NowTimeFunc()}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return token, nil
}

// Rotate consumes token and issues a replacement for the same user. A token
// can be rotated once; a second attempt returns ErrNotFound.
func (m *Manager) Rotate(token string) (userID, replacement string, err error) {
	st, err := m.repo.Take(token)
	if err != nil {
		return "", "", err
	}
	if m.IsExpired(st) {
		return "", "", ErrExpired
	}
	replacement, err = m.Create(st.UserID)
	if err != nil {
		return "", "", err
	}
	return st.UserID, replacement, nil
}

// Revoke deletes token. Revoking an unknown token is not an error.
func (m *Manager) Revoke(token string) error {
	return m.repo.Delete(token)
}

func (m *Manager) IsExpired(st *StoredToken) bool {
	return m.ttl > 0 && NowTimeFunc().Sub(st.Iat) > m.ttl
}
