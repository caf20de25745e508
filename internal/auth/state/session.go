package state

import (
	"context"
	"time"

	"procura/internal/auth/credentials"
	"procura/internal/auth/models"
	dErrors "procura/pkg/domain-errors"
	request "procura/pkg/platform/middleware/request"
)

// Login authenticates and seeds the user cache from the login response.
// On failure the session is left as it was.
func (s *State) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	result, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	user := result.User
	s.authenticated = true
	s.user = &user
	s.cache.Set(UserKey, &user)
	s.publishLocked()

	s.logger.InfoContext(ctx, "session started",
		"user_id", user.ID,
		"role", user.Role,
		"request_id", request.GetRequestID(ctx),
	)
	return result, nil
}

// Logout clears the credentials and every cached response. The local session
// ends even when clearing the store fails.
func (s *State) Logout(ctx context.Context) error {
	err := s.auth.Logout(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked()
	s.logger.InfoContext(ctx, "session ended",
		"reason", "logout",
		"request_id", request.GetRequestID(ctx),
	)
	return err
}

// InvalidateSession ends the session after the request layer found token
// unusable. A failure reported for a token that a newer login has already
// replaced leaves the newer session alone.
func (s *State) InvalidateSession(ctx context.Context, token string, cause error) {
	reason := string(dErrors.CodeOf(cause))
	ended, err := s.auth.EndSessionFor(ctx, token, reason)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to clear credentials", "error", err)
	} else if !ended {
		s.logger.DebugContext(ctx, "stale session invalidation ignored",
			"reason", reason,
			"request_id", request.GetRequestID(ctx),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wasAuthenticated := s.authenticated
	s.endLocked()
	if wasAuthenticated {
		s.logger.WarnContext(ctx, "session ended",
			"reason", reason,
			"request_id", request.GetRequestID(ctx),
		)
	}
}

// watch re-validates the session on every storage change until the channel
// closes.
func (s *State) watch(events <-chan credentials.Event) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			authenticated, err := s.auth.ValidateSession(s.ctx)
			if err != nil {
				s.logger.WarnContext(s.ctx, "session revalidation failed",
					"op", string(ev.Op),
					"error", err,
				)
				continue
			}
			s.logger.DebugContext(s.ctx, "credential store changed",
				"op", string(ev.Op),
				"origin", ev.Origin,
				"authenticated", authenticated,
			)
			s.applySession(s.ctx, authenticated)
		}
	}
}

// applySession moves the state to match the stored session.
func (s *State) applySession(ctx context.Context, authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case authenticated && !s.authenticated:
		s.resetLocked()
		s.authenticated = true
		s.startLoadLocked()
		s.publishLocked()
		s.logger.InfoContext(ctx, "session restored from store")
	case !authenticated && s.authenticated:
		s.endLocked()
		s.logger.InfoContext(ctx, "session ended", "reason", "store_cleared")
	}
}

// resetLocked drops the user, any in-flight load and all cached data.
func (s *State) resetLocked() {
	s.epoch++
	if s.loadCancel != nil {
		s.loadCancel()
		s.loadCancel = nil
	}
	s.loading = false
	s.retryAt = time.Time{}
	s.user = nil
	s.cache.Purge()
}

func (s *State) endLocked() {
	s.resetLocked()
	s.authenticated = false
	s.publishLocked()
}
