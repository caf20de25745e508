package service

import (
	"context"
	"encoding/json"
	"net/http"

	"procura/internal/auth/models"
	"procura/internal/platform/tracer"
	dErrors "procura/pkg/domain-errors"
	httpErrors "procura/pkg/http-errors"
)

const refreshKey = "refresh"

// RefreshAccessToken obtains a new access token with the stored refresh token.
//
// Concurrent callers share a single backend call. The shared call does not
// inherit any one caller's cancellation; a caller whose context ends stops
// waiting and gets its context error.
//
// A missing refresh token, a 400/401/403 answer or a malformed new token ends
// the session: credentials are cleared and CodeUnauthorized is returned.
// Transport failures and other statuses leave the credentials untouched.
func (s *Service) RefreshAccessToken(ctx context.Context) (string, error) {
	ch := s.refresh.DoChan(refreshKey, func() (any, error) {
		return s.doRefresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.metrics.IncrementRefresh("shared")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", transportError(ctx, ctx.Err())
	}
}

func (s *Service) doRefresh(ctx context.Context) (token string, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRefresh, tracer.String(tracer.AttrPath, s.paths.Refresh))
	defer func() { span.End(err) }()

	accessToken, err := s.store.AccessToken(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "read access token")
	}
	refreshToken, err := s.store.RefreshToken(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "read refresh token")
	}
	if refreshToken == "" {
		s.metrics.IncrementRefresh("rejected")
		return "", s.endSession(ctx, accessToken, "missing_refresh_token",
			dErrors.New(dErrors.CodeUnauthorized, "no refresh token"))
	}
	span.SetAttributes(tracer.Token(refreshToken))

	resp, err := s.send(ctx, http.MethodPost, s.paths.Refresh, models.RefreshRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		s.metrics.IncrementRefresh("error")
		s.logFailure(ctx, "refresh_failed", err, "reason", "transport")
		return "", err
	}
	span.SetAttributes(tracer.Int(tracer.AttrStatus, resp.status))

	switch {
	case resp.status == http.StatusBadRequest, resp.status == http.StatusUnauthorized, resp.status == http.StatusForbidden:
		s.metrics.IncrementRefresh("rejected")
		return "", s.endSession(ctx, accessToken, "refresh_rejected",
			dErrors.New(dErrors.CodeUnauthorized, httpErrors.Message(resp.status, resp.body)))
	case !resp.ok():
		s.metrics.IncrementRefresh("error")
		err = dErrors.New(dErrors.CodeUpstream, "refresh failed: "+httpErrors.Message(resp.status, resp.body))
		s.logFailure(ctx, "refresh_failed", err, "status", resp.status)
		return "", err
	}

	var payload models.RefreshResult
	if jsonErr := json.Unmarshal(resp.body, &payload); jsonErr != nil || !models.WellFormedToken(payload.AccessToken) {
		s.metrics.IncrementRefresh("rejected")
		return "", s.endSession(ctx, accessToken, "refresh_malformed",
			dErrors.New(dErrors.CodeUnauthorized, "refresh returned a malformed access token"))
	}

	if payload.RefreshToken != "" {
		err = s.store.Save(ctx, models.TokenPair{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken})
	} else {
		err = s.store.SetAccessToken(ctx, payload.AccessToken)
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "persist refreshed token")
	}

	s.metrics.IncrementRefresh("success")
	s.logEvent(ctx, "token_refreshed", "rotated", payload.RefreshToken != "")
	return payload.AccessToken, nil
}

// endSession ends the session accessToken belongs to and returns cause.
func (s *Service) endSession(ctx context.Context, accessToken, reason string, cause error) error {
	if ended, err := s.clearFor(ctx, accessToken, reason); err == nil && ended {
		s.metrics.IncrementInvalidation(reason)
	}
	return cause
}

// EndSessionFor clears the credentials if they still hold accessToken. It
// reports whether no session remains afterwards; false means a newer session
// replaced accessToken and was left in place.
func (s *Service) EndSessionFor(ctx context.Context, accessToken, reason string) (bool, error) {
	ended, err := s.clearFor(ctx, accessToken, reason)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "clear credentials")
	}
	return ended, nil
}

func (s *Service) clearFor(ctx context.Context, accessToken, reason string) (bool, error) {
	cleared, err := s.store.ClearIf(ctx, accessToken)
	if err != nil {
		s.logFailure(ctx, "credential_clear_failed", err, "reason", reason)
		return false, err
	}
	if cleared {
		s.logEvent(ctx, "session_ended", "reason", reason)
		return true, nil
	}

	current, err := s.store.AccessToken(ctx)
	if err != nil {
		s.logFailure(ctx, "credential_clear_failed", err, "reason", reason)
		return false, err
	}
	if current != "" {
		s.logger.DebugContext(ctx, "session_end_skipped",
			"event", "session_end_skipped",
			"reason", reason,
			"stale_token_fp", tracer.Fingerprint(accessToken),
		)
		return false, nil
	}
	return true, nil
}
