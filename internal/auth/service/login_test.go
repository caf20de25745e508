package service

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"

	"procura/internal/auth/credentials"
	"procura/internal/auth/models"
	fixtures "procura/pkg/testutil"
	dErrors "procura/pkg/domain-errors"
)

func (s *ServiceSuite) TestLogin() {
	s.Run("persists the token pair and returns the user", func() {
		result := s.loginAs(fixtures.TestUsers.Purchaser)

		s.Equal(fixtures.TestUsers.Purchaser, result.User)
		s.Equal(result.Tokens(), s.storedPair())
		s.True(models.WellFormedToken(result.AccessToken))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Logins.WithLabelValues("success")))
	})

	s.Run("wrong password surfaces the backend message and stores nothing", func() {
		s.Require().NoError(s.store.Clear(s.ctx))

		result, err := s.service.Login(s.ctx, fixtures.TestUsers.AP.Email, "wrong")

		s.Nil(result)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
		s.Equal("Invalid email or password", err.Error())
		s.True(s.storedPair().IsZero())
	})

	s.Run("plain text error body becomes the message", func() {
		s.backend.FailNext("/auth/login", http.StatusTooManyRequests, 1, "slow down")

		_, err := s.service.Login(s.ctx, fixtures.TestUsers.AP.Email, fixtures.DefaultPassword)

		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
		s.Equal("slow down", err.Error())
	})

	s.Run("success payload without tokens is an upstream error", func() {
		s.Require().NoError(s.store.Clear(s.ctx))
		s.backend.FailNext("/auth/login", http.StatusOK, 1, `{"user":{"id":"x"}}`)

		_, err := s.service.Login(s.ctx, fixtures.TestUsers.AP.Email, fixtures.DefaultPassword)

		s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
		s.True(s.storedPair().IsZero())
	})
}

func (s *ServiceSuite) TestLogin_TransportFailure() {
	doer := new(mockDoer)
	doer.On("Do", mock.Anything).Return(nil, errors.New("dial tcp: connection refused")).Once()
	svc := New(credentials.NewMemoryStore(), "http://backend.invalid/api", WithHTTPClient(doer))

	_, err := svc.Login(s.ctx, "a@b.co", "pw")

	s.True(dErrors.HasCode(err, dErrors.CodeTransport))
	doer.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestLogin_SendsRequestMetadata() {
	doer := new(mockDoer)
	doer.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == http.MethodPost &&
			req.URL.String() == "http://backend.invalid/api/auth/login" &&
			req.Header.Get("Content-Type") == "application/json" &&
			req.Header.Get("X-Request-ID") != "" &&
			req.Header.Get("User-Agent") == "procura-test"
	})).Return(nil, errors.New("stop")).Once()
	svc := New(credentials.NewMemoryStore(), "http://backend.invalid/api/", WithHTTPClient(doer), WithUserAgent("procura-test"))

	_, _ = svc.Login(s.ctx, "a@b.co", "pw")

	doer.AssertExpectations(s.T())
}
