package service

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"procura/internal/auth/models"
	fixtures "procura/pkg/testutil"
	"procura/pkg/testutil/backend"
	dErrors "procura/pkg/domain-errors"
)

func (s *ServiceSuite) TestRefreshAccessToken() {
	s.Run("stores and returns a new access token, keeping the refresh token", func() {
		login := s.loginAs(fixtures.TestUsers.PM)

		token, err := s.service.RefreshAccessToken(s.ctx)

		s.Require().NoError(err)
		s.NotEqual(login.AccessToken, token)
		s.Equal(models.TokenPair{AccessToken: token, RefreshToken: login.RefreshToken}, s.storedPair())
	})

	s.Run("without a refresh token ends the session", func() {
		s.Require().NoError(s.store.Save(s.ctx, models.TokenPair{AccessToken: "a.b.c"}))

		_, err := s.service.RefreshAccessToken(s.ctx)

		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.True(s.storedPair().IsZero())
	})

	s.Run("rejected refresh token ends the session", func() {
		s.loginAs(fixtures.TestUsers.PM)
		s.backend.RevokeRefreshTokens()

		_, err := s.service.RefreshAccessToken(s.ctx)

		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.True(s.storedPair().IsZero())
	})

	s.Run("malformed new token ends the session", func() {
		s.loginAs(fixtures.TestUsers.PM)
		s.backend.FailNext(backend.PathRefresh, http.StatusOK, 1, `{"accessToken":"opaque"}`)

		_, err := s.service.RefreshAccessToken(s.ctx)

		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.True(s.storedPair().IsZero())
	})

	s.Run("server error keeps the session", func() {
		login := s.loginAs(fixtures.TestUsers.PM)
		s.backend.FailNext(backend.PathRefresh, http.StatusBadGateway, 1, "")

		_, err := s.service.RefreshAccessToken(s.ctx)

		s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
		s.Equal(login.Tokens(), s.storedPair())
	})
}

func (s *ServiceSuite) TestRefreshAccessToken_Rotation() {
	_, baseURL := backend.NewServer(s.T(), backend.WithRefreshRotation())
	svc := New(s.store, baseURL)
	login, err := svc.Login(s.ctx, fixtures.TestUsers.Field.Email, fixtures.DefaultPassword)
	s.Require().NoError(err)

	token, err := svc.RefreshAccessToken(s.ctx)

	s.Require().NoError(err)
	pair := s.storedPair()
	s.Equal(token, pair.AccessToken)
	s.NotEqual(login.RefreshToken, pair.RefreshToken)
	s.NotEmpty(pair.RefreshToken)
}

func (s *ServiceSuite) TestRefreshAccessToken_ConcurrentCallersShareOneCall() {
	s.loginAs(fixtures.TestUsers.Admin)
	s.backend.SetLatency(100 * time.Millisecond)
	s.backend.ResetCalls()

	tokens := make(chan string, 8)
	result := fixtures.RunConcurrent(8, func(int) error {
		token, err := s.service.RefreshAccessToken(s.ctx)
		tokens <- token
		return err
	})
	close(tokens)

	s.Equal(int32(8), result.Successes)
	s.Equal(1, s.backend.Calls(backend.PathRefresh))
	var first string
	for token := range tokens {
		if first == "" {
			first = token
		}
		s.Equal(first, token)
	}
	s.Positive(testutil.ToFloat64(s.metrics.TokenRefreshes.WithLabelValues("shared")))
}

func (s *ServiceSuite) TestRefreshAccessToken_CallerCancellation() {
	s.loginAs(fixtures.TestUsers.Admin)
	s.backend.SetLatency(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	_, err := s.service.RefreshAccessToken(ctx)

	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))

	// the shared refresh still completes for other callers
	s.Eventually(func() bool {
		return s.backend.Calls(backend.PathRefresh) == 1
	}, time.Second, 10*time.Millisecond)
}
