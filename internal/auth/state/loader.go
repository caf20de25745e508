package state

import (
	"context"

	"procura/internal/auth/models"
	"procura/internal/querycache"
)

// User returns the current user, loading it when needed. It returns nil when
// the session is not authenticated or ends during the load.
func (s *State) User(ctx context.Context) (*models.AuthUser, error) {
	s.mu.Lock()
	if s.user != nil || !s.authenticated {
		user := s.user
		s.mu.Unlock()
		return user, nil
	}
	epoch := s.epoch
	s.mu.Unlock()

	user, err := querycache.FetchAs(ctx, s.cache, UserKey, s.auth.CurrentUser)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyUserLocked(epoch, user)
	return s.user, nil
}

// startLoadLocked begins a background load of the user when the session is
// authenticated, no user is known and no load is running.
func (s *State) startLoadLocked() {
	if !s.authenticated || s.user != nil || s.loading {
		return
	}
	if s.closed || s.now().Before(s.retryAt) {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.userLoadTimeout)
	s.loading = true
	s.loadCancel = cancel
	epoch := s.epoch

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		user, err := querycache.FetchAs(ctx, s.cache, UserKey, s.auth.CurrentUser)
		s.finishLoad(ctx, epoch, user, err)
	}()
}

func (s *State) finishLoad(ctx context.Context, epoch uint64, user *models.AuthUser, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.loading = false
	s.loadCancel = nil

	if err != nil {
		// The session stays; a later snapshot retries the load.
		s.retryAt = s.now().Add(loadRetryDelay)
		s.logger.WarnContext(ctx, "failed to load current user", "error", err)
		s.publishLocked()
		return
	}
	s.applyUserLocked(epoch, user)
}

// applyUserLocked records a loaded user. A nil user means the backend no
// longer recognises the session.
func (s *State) applyUserLocked(epoch uint64, user *models.AuthUser) {
	if epoch != s.epoch || !s.authenticated {
		return
	}
	if user == nil {
		s.endLocked()
		s.logger.InfoContext(s.ctx, "session ended", "reason", "user_unavailable")
		return
	}
	s.user = user
	s.publishLocked()
}
