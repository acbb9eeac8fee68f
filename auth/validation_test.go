package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-client/auth"
)

func TestValidator_ValidateCredentials(t *testing.T) {
	v := auth.NewValidator()

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "jane@example.com", "secret", nil},
		{"missing email", "  ", "secret", auth.ErrEmailRequired},
		{"no at sign", "jane.example.com", "secret", auth.ErrInvalidEmail},
		{"no domain dot", "jane@localhost", "secret", auth.ErrInvalidEmail},
		{"display name form", "Jane <jane@example.com>", "secret", auth.ErrInvalidEmail},
		{"missing password", "jane@example.com", "", auth.ErrPasswordRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCredentials(tt.email, tt.password)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidator_ValidateRegistration(t *testing.T) {
	v := auth.NewValidator()

	t.Run("name required", func(t *testing.T) {
		err := v.ValidateRegistration(auth.RegisterInput{Email: "a@b.co", Password: "x"})
		require.ErrorIs(t, err, auth.ErrNameRequired)
	})

	t.Run("valid", func(t *testing.T) {
		err := v.ValidateRegistration(auth.RegisterInput{Name: "A", Email: "a@b.co", Password: "x"})
		require.NoError(t, err)
	})

	t.Run("reset token required", func(t *testing.T) {
		require.ErrorIs(t, v.ValidateReset("", "x"), auth.ErrTokenRequired)
		require.ErrorIs(t, v.ValidateReset("tok", ""), auth.ErrPasswordRequired)
	})
}
