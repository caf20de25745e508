package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"procura/internal/auth/models"
	"procura/internal/platform/tracer"
	dErrors "procura/pkg/domain-errors"
	httpErrors "procura/pkg/http-errors"
)

// CurrentUser fetches the signed-in user.
//
// It returns nil, nil when no access token is stored, and also after a 401,
// which ends the session. If a newer session replaced the token while the
// request was in flight, the newer token is tried instead and the newer
// session is left alone. Other statuses are CodeUpstream errors. A transport
// failure is returned as an error and leaves the session intact: an
// unreachable backend says nothing about the credentials.
func (s *Service) CurrentUser(ctx context.Context) (*models.AuthUser, error) {
	token, err := s.store.AccessToken(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read access token")
	}

	for attempt := 0; attempt < 2 && token != ""; attempt++ {
		user, rejected, err := s.fetchUser(ctx, token)
		if err != nil || !rejected {
			return user, err
		}
		ended, err := s.clearFor(ctx, token, "current_user_unauthorized")
		if err != nil || ended {
			if ended {
				s.metrics.IncrementInvalidation("current_user_unauthorized")
			}
			return nil, nil
		}
		if token, err = s.store.AccessToken(ctx); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read access token")
		}
	}
	return nil, nil
}

// fetchUser calls the user endpoint with token. rejected reports a 401.
func (s *Service) fetchUser(ctx context.Context, token string) (user *models.AuthUser, rejected bool, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanCurrentUser,
		tracer.String(tracer.AttrPath, s.paths.Me),
		tracer.Token(token),
	)
	defer func() { span.End(err) }()

	resp, err := s.send(ctx, http.MethodGet, s.paths.Me, nil, token)
	if err != nil {
		s.logFailure(ctx, "current_user_failed", err, "reason", "transport")
		return nil, false, err
	}
	span.SetAttributes(tracer.Int(tracer.AttrStatus, resp.status))

	if resp.status == http.StatusUnauthorized {
		return nil, true, nil
	}
	if !resp.ok() {
		err = dErrors.New(dErrors.CodeUpstream,
			"failed to load current user: status "+strconv.Itoa(resp.status)+": "+httpErrors.Message(resp.status, resp.body))
		s.logFailure(ctx, "current_user_failed", err, "status", resp.status)
		return nil, false, err
	}

	var payload models.AuthUser
	if jsonErr := json.Unmarshal(resp.body, &payload); jsonErr != nil {
		err = dErrors.Wrap(jsonErr, dErrors.CodeUpstream, "malformed user response")
		return nil, false, err
	}
	return &payload, false, nil
}
