package models

import (
	"strings"

	"procura/pkg/validation"
)

// LoginRequest is the body posted to the backend's login endpoint and accepted
// by the portal's login form.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Normalize trims the email and lowercases it. Passwords are left untouched.
func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// DecodeForm fills the request from a submitted login form.
func (r *LoginRequest) DecodeForm(values map[string][]string) {
	if v := values["email"]; len(v) > 0 {
		r.Email = v[0]
	}
	if v := values["password"]; len(v) > 0 {
		r.Password = v[0]
	}
}

// Validate checks the request against its struct tags.
func (r *LoginRequest) Validate() error {
	return validation.Validate(r)
}

// RefreshRequest is the body posted to the backend's refresh endpoint.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
