package models

// LoginResult is the backend's login response.
type LoginResult struct {
	User         AuthUser `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// Tokens returns the credential pair carried by the login response.
func (r *LoginResult) Tokens() TokenPair {
	return TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// RefreshResult is the backend's refresh response. RefreshToken is set only
// when the backend rotates refresh tokens.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
