package auth

import (
	"net/mail"
	"strings"
)

// Validator checks account forms before they are sent, so obviously bad
// input fails fast without a round trip.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateCredentials validates login credentials.
func (v *Validator) ValidateCredentials(email, password string) error {
	if err := v.ValidateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return ErrPasswordRequired
	}
	return nil
}

func (v *Validator) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return ErrInvalidEmail
	}
	return nil
}

func (v *Validator) ValidateRegistration(input RegisterInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return ErrNameRequired
	}
	return v.ValidateCredentials(input.Email, input.Password)
}

func (v *Validator) ValidateReset(token, password string) error {
	if strings.TrimSpace(token) == "" {
		return ErrTokenRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}
	return nil
}
