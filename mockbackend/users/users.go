// Package users is the mock backend's account store.
package users

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrEmailInUse   = errors.New("email already registered")
	ErrWeakPassword = errors.New("password too weak")
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Membership is a user's role within one workspace.
type Membership struct {
	WorkspaceID string    `json:"workspaceId"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	PasswordHash string       `json:"-"`
	DateJoined   time.Time    `json:"dateJoined"`
	LastLogin    time.Time    `json:"lastLogin,omitempty"`
	Workspaces   []Membership `json:"workspaces"`
}

// ValidatePasswordStrength requires at least 8 characters with upper case,
// lower case and a digit.
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: must be at least 8 characters long", ErrWeakPassword)
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("%w: must contain at least one uppercase letter", ErrWeakPassword)
	}
	if !hasLower {
		return fmt.Errorf("%w: must contain at least one lowercase letter", ErrWeakPassword)
	}
	if !hasNumber {
		return fmt.Errorf("%w: must contain at least one number", ErrWeakPassword)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(bytes), err
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func (u *User) IsMember(workspaceID string) bool {
	for _, m := range u.Workspaces {
		if m.WorkspaceID == workspaceID {
			return true
		}
	}
	return false
}

func (u *User) RoleIn(workspaceID string) Role {
	for _, m := range u.Workspaces {
		if m.WorkspaceID == workspaceID {
			return m.Role
		}
	}
	return ""
}

type Repo interface {
	Upsert(user *User) error
	GetByEmail(email string) (*User, error)
	GetByID(id string) (*User, error)
	List() ([]*User, error)
}

var _ Repo = (*MemoryRepo)(nil)

type MemoryRepo struct {
	users    map[string]*User
	emailIDs map[string]string // lower-cased email to user id
	lock     sync.RWMutex
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:    make(map[string]*User),
		emailIDs: make(map[string]string),
	}
}

func (r *MemoryRepo) Upsert(user *User) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := strings.ToLower(user.Email)
	if id, ok := r.emailIDs[key]; ok && id != user.ID {
		return ErrEmailInUse
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	r.users[user.ID] = user
	r.emailIDs[key] = user.ID
	return nil
}

func (r *MemoryRepo) GetByEmail(email string) (*User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.emailIDs[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return r.users[id], nil
}

func (r *MemoryRepo) GetByID(id string) (*User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (r *MemoryRepo) List() ([]*User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Email < out[j].Email
	})
	return out, nil
}
