package models

// This file contains the session entities held by the client: the token pair
// owned by the credential store and the user snapshot returned by the backend.

// TokenPair is the bearer credential pair issued at login.
// Tokens are opaque to the client apart from the access token's shape check.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// IsZero reports whether neither token is set.
func (p TokenPair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// AuthUser is the backend's view of the signed-in user.
// It is treated as an immutable snapshot and replaced wholesale on refetch.
type AuthUser struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organizationId"`
}

// DisplayName returns "First Last", falling back to the email address.
func (u *AuthUser) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}
