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

// Login exchanges credentials for a token pair and persists it.
// A non-2xx answer is reported as invalid credentials carrying the backend's
// message; nothing is stored in that case.
func (s *Service) Login(ctx context.Context, email, password string) (result *models.LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanLogin, tracer.String(tracer.AttrPath, s.paths.Login))
	defer func() { span.End(err) }()

	resp, err := s.send(ctx, http.MethodPost, s.paths.Login, models.LoginRequest{Email: email, Password: password}, "")
	if err != nil {
		s.metrics.IncrementLogin("error")
		s.logFailure(ctx, "login_failed", err, "reason", "transport")
		return nil, err
	}
	span.SetAttributes(tracer.Int(tracer.AttrStatus, resp.status))

	if !resp.ok() {
		s.metrics.IncrementLogin("rejected")
		err = dErrors.New(dErrors.CodeInvalidCredentials, httpErrors.Message(resp.status, resp.body))
		s.logFailure(ctx, "login_failed", err, "reason", "rejected", "status", resp.status)
		return nil, err
	}

	var payload models.LoginResult
	if jsonErr := json.Unmarshal(resp.body, &payload); jsonErr != nil {
		s.metrics.IncrementLogin("error")
		err = dErrors.Wrap(jsonErr, dErrors.CodeUpstream, "malformed login response")
		return nil, err
	}
	if payload.AccessToken == "" || payload.RefreshToken == "" {
		s.metrics.IncrementLogin("error")
		err = dErrors.New(dErrors.CodeUpstream, "login response is missing tokens")
		return nil, err
	}

	if saveErr := s.store.Save(ctx, payload.Tokens()); saveErr != nil {
		s.metrics.IncrementLogin("error")
		err = dErrors.Wrap(saveErr, dErrors.CodeInternal, "persist credentials")
		return nil, err
	}

	s.metrics.IncrementLogin("success")
	s.logEvent(ctx, "login_succeeded",
		"user_id", payload.User.ID,
		"role", payload.User.Role.String(),
	)
	return &payload, nil
}
