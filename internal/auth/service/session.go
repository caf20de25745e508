package service

import (
	"context"

	"procura/internal/auth/models"
	dErrors "procura/pkg/domain-errors"
)

// Logout clears the stored credentials. It does not contact the backend.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "clear credentials")
	}
	s.logEvent(ctx, "logged_out")
	return nil
}

// IsAuthenticated reports whether a well-formed access token is stored.
// It never modifies the store.
func (s *Service) IsAuthenticated(ctx context.Context) (bool, error) {
	token, err := s.store.AccessToken(ctx)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "read access token")
	}
	return token != "" && models.WellFormedToken(token), nil
}

// ValidateSession is IsAuthenticated that also clears the store when the
// stored access token is malformed.
func (s *Service) ValidateSession(ctx context.Context) (bool, error) {
	token, err := s.store.AccessToken(ctx)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "read access token")
	}
	if token == "" {
		return false, nil
	}
	if !models.WellFormedToken(token) {
		_ = s.endSession(ctx, token, "malformed_token", nil) //nolint:errcheck // always nil
		return false, nil
	}
	return true, nil
}

// HasRole reports whether userRole satisfies the least demanding of required.
func (s *Service) HasRole(required []models.Role, userRole models.Role) bool {
	return models.HasRole(required, userRole)
}
