package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"

	"procura/internal/auth/credentials"
	"procura/internal/auth/models"
	dErrors "procura/pkg/domain-errors"
	httpErrors "procura/pkg/http-errors"
	"procura/pkg/platform/circuit"
	fixtures "procura/pkg/testutil"
	"procura/pkg/testutil/backend"
)

func (s *ClientSuite) TestRequest_AttachesBearerToken() {
	s.login(fixtures.TestUsers.Purchaser)
	client := s.newClient()

	resp, err := client.Get(s.ctx, "/rfqs")

	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.Status)
	var rfqs []map[string]any
	s.Require().NoError(resp.Decode(&rfqs))
	s.Len(rfqs, 1)
	s.Zero(s.invalidations())
}

func (s *ClientSuite) TestRequest_SendsJSONBodyAndRequestID() {
	doer := new(mockDoer)
	doer.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		if req.GetBody == nil {
			return false
		}
		rc, _ := req.GetBody()
		body, _ := io.ReadAll(rc)
		return req.Method == http.MethodPost &&
			req.URL.Path == "/api/requisitions" &&
			req.Header.Get("Content-Type") == "application/json" &&
			len(req.Header.Get("X-Request-ID")) == 36 &&
			req.Header.Get("Authorization") == "" &&
			string(body) == `{"items":2}`
	})).Return(&http.Response{
		StatusCode: http.StatusCreated,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(`{"id":"req-9"}`)),
	}, nil).Once()
	client := New("http://backend.test/api", s.store, WithHTTPClient(doer))

	resp, err := client.Request(s.ctx, http.MethodPost, "/requisitions", map[string]int{"items": 2})

	s.Require().NoError(err)
	s.Equal(http.StatusCreated, resp.Status)
	doer.AssertExpectations(s.T())
}

func (s *ClientSuite) TestRequest_RefreshesAndRetriesOnce() {
	s.login(fixtures.TestUsers.Purchaser)
	s.backend.ExpireAccessTokens()
	s.backend.ResetCalls()
	client := s.newClient()

	resp, err := client.Get(s.ctx, "/rfqs")

	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.Status)
	s.Equal(1, s.backend.Calls(backend.PathRefresh))
	s.Equal(2, s.backend.Calls("/rfqs"))
	s.Zero(s.invalidations())
}

func (s *ClientSuite) TestRequest_SecondUnauthorizedIsTerminal() {
	s.login(fixtures.TestUsers.Purchaser)
	s.backend.FailNext("/rfqs", http.StatusUnauthorized, 2, `{"message":"Token expired"}`)
	s.backend.ResetCalls()
	client := s.newClient()

	_, err := client.Get(s.ctx, "/rfqs")

	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal(1, s.backend.Calls(backend.PathRefresh))
	s.Equal(2, s.backend.Calls("/rfqs"))
	s.Equal(1, s.invalidations())
}

func (s *ClientSuite) TestRequest_ConcurrentUnauthorizedShareOneRefresh() {
	s.login(fixtures.TestUsers.Admin)
	s.backend.ExpireAccessTokens()
	s.backend.SetLatency(50 * time.Millisecond)
	s.backend.ResetCalls()
	client := s.newClient()

	result := fixtures.RunConcurrent(5, func(int) error {
		_, err := client.Get(s.ctx, "/vendors")
		return err
	})

	s.Equal(int32(5), result.Successes)
	s.Equal(1, s.backend.Calls(backend.PathRefresh))
}

func (s *ClientSuite) TestRequest_RejectedRefreshInvalidatesSession() {
	s.login(fixtures.TestUsers.Purchaser)
	s.backend.ExpireAccessTokens()
	s.backend.RevokeRefreshTokens()
	client := s.newClient()

	_, err := client.Get(s.ctx, "/rfqs")

	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal(1, s.invalidations())
	access, _ := s.store.AccessToken(s.ctx)
	s.Empty(access)
}

func (s *ClientSuite) TestRequest_AutoRefreshDisabled() {
	s.login(fixtures.TestUsers.Purchaser)
	s.backend.ExpireAccessTokens()
	s.backend.ResetCalls()
	client := s.newClient(WithAutoRefresh(false))

	_, err := client.Get(s.ctx, "/rfqs")

	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Zero(s.backend.Calls(backend.PathRefresh))
	s.Equal(1, s.invalidations())
}

func (s *ClientSuite) TestRequest_ForbiddenInvalidatesSession() {
	s.login(fixtures.TestUsers.Purchaser)
	client := s.newClient()

	_, err := client.Get(s.ctx, "/admin/users")

	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	var httpErr *httpErrors.HTTPError
	s.Require().True(errors.As(err, &httpErr))
	s.Equal(http.StatusForbidden, httpErr.Status)
	s.Contains(string(httpErr.Body), "Insufficient role")
	s.Equal(1, s.invalidations())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SessionInvalidations.WithLabelValues("forbidden")))
}

func (s *ClientSuite) TestRequest_InvalidationNamesTheTokenThatFailed() {
	login := s.login(fixtures.TestUsers.Purchaser)
	client := s.newClient()

	_, err := client.Get(s.ctx, "/admin/users")

	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.invalidator.AssertCalled(s.T(), "InvalidateSession", mock.Anything, login.AccessToken, mock.Anything)
}

func (s *ClientSuite) TestRequest_UnauthorizedAfterNewerLoginKeepsNewSession() {
	s.login(fixtures.TestUsers.AP)
	s.backend.ExpireAccessTokens()
	s.backend.SetPathLatency("/rfqs", 300*time.Millisecond)

	var ended bool
	invalidator := new(mockInvalidator)
	invalidator.On("InvalidateSession", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ended, _ = s.auth.EndSessionFor(args.Get(0).(context.Context), args.String(1), "unauthorized")
		}).Return()
	client := s.newClient(WithAutoRefresh(false), WithSessionInvalidator(invalidator))

	errs := make(chan error, 1)
	go func() {
		_, err := client.Get(s.ctx, "/rfqs")
		errs <- err
	}()
	s.Require().Eventually(func() bool {
		return s.backend.Calls("/rfqs") == 1
	}, time.Second, 5*time.Millisecond)

	newer := s.login(fixtures.TestUsers.Purchaser)

	select {
	case err := <-errs:
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	case <-time.After(2 * time.Second):
		s.FailNow("request did not finish")
	}
	invalidator.AssertNumberOfCalls(s.T(), "InvalidateSession", 1)
	s.False(ended)
	access, _ := s.store.AccessToken(s.ctx)
	s.Equal(newer.AccessToken, access)
}

func (s *ClientSuite) TestRequest_ServerErrorKeepsSession() {
	s.login(fixtures.TestUsers.Purchaser)
	s.backend.FailNext("/rfqs", http.StatusInternalServerError, 1, `{"message":"db down"}`)
	client := s.newClient()

	_, err := client.Get(s.ctx, "/rfqs")

	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.Equal("db down", err.Error())
	s.Zero(s.invalidations())
}

func (s *ClientSuite) TestRequest_NotFound() {
	s.login(fixtures.TestUsers.Admin)
	_, err := s.newClient().Get(s.ctx, "/nothing-here")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Zero(s.invalidations())
}

func (s *ClientSuite) TestRequest_TransportFailureNeverInvalidates() {
	s.login(fixtures.TestUsers.Purchaser)
	doer := new(mockDoer)
	doer.On("Do", mock.Anything).Return(nil, errors.New("connection reset by peer"))
	client := s.newClient(WithHTTPClient(doer))

	_, err := client.Get(s.ctx, "/rfqs")

	s.True(dErrors.HasCode(err, dErrors.CodeTransport))
	s.Zero(s.invalidations())
	access, _ := s.store.AccessToken(s.ctx)
	s.NotEmpty(access)
}

func (s *ClientSuite) TestRequest_MalformedTokenInvalidatesWithoutSending() {
	s.Require().NoError(s.store.Save(s.ctx, models.TokenPair{AccessToken: "garbage", RefreshToken: "r"}))
	s.backend.ResetCalls()

	_, err := s.newClient().Get(s.ctx, "/rfqs")

	s.True(dErrors.HasCode(err, dErrors.CodeMalformedToken))
	s.Zero(s.backend.Calls("/rfqs"))
	s.Equal(1, s.invalidations())
}

func (s *ClientSuite) TestRequest_ProactiveRefreshNearExpiry() {
	b, baseURL := backend.NewServer(s.T(), backend.WithAccessTTL(10*time.Second))
	store := credentials.NewMemoryStore()
	auth := newAuth(store, baseURL)
	login, err := auth.Login(s.ctx, fixtures.TestUsers.PM.Email, fixtures.DefaultPassword)
	s.Require().NoError(err)
	b.ResetCalls()

	client := New(baseURL, store,
		WithRefresher(auth),
		WithRefreshSkew(30*time.Second),
		WithLogger(s.logger),
	)
	_, err = client.Get(s.ctx, "/projects")

	s.Require().NoError(err)
	s.Equal(1, b.Calls(backend.PathRefresh))
	s.Equal(1, b.Calls("/projects"))
	access, _ := store.AccessToken(s.ctx)
	s.NotEqual(login.AccessToken, access)
}

func (s *ClientSuite) TestRequest_NoProactiveRefreshOutsideSkew() {
	s.login(fixtures.TestUsers.PM)
	s.backend.ResetCalls()

	_, err := s.newClient(WithRefreshSkew(time.Minute)).Get(s.ctx, "/projects")

	s.Require().NoError(err)
	s.Zero(s.backend.Calls(backend.PathRefresh))
}

func (s *ClientSuite) TestRequest_CircuitBreaker() {
	s.login(fixtures.TestUsers.Purchaser)
	now := time.Now()
	breaker := circuit.New("backend",
		circuit.WithFailureThreshold(2),
		circuit.WithCoolDown(10*time.Second),
		circuit.WithClock(func() time.Time { return now }),
	)
	client := s.newClient(WithBreaker(breaker))
	s.backend.SetDown(true)

	for range 2 {
		_, err := client.Get(s.ctx, "/rfqs")
		s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	}
	s.True(breaker.IsOpen())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.BreakerOpen))

	s.backend.ResetCalls()
	_, err := client.Get(s.ctx, "/rfqs")
	s.True(dErrors.HasCode(err, dErrors.CodeTransport))
	s.Equal("backend unavailable", err.Error())
	s.Zero(s.backend.Calls("/rfqs"))

	s.backend.SetDown(false)
	now = now.Add(10 * time.Second)
	_, err = client.Get(s.ctx, "/rfqs")
	s.Require().NoError(err)
	s.False(breaker.IsOpen())
	s.Equal(0.0, testutil.ToFloat64(s.metrics.BreakerOpen))
	s.Zero(s.invalidations())
}

func (s *ClientSuite) TestRequest_Timeout() {
	s.login(fixtures.TestUsers.Purchaser)
	s.backend.SetLatency(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	_, err := s.newClient().Get(ctx, "/rfqs")

	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Zero(s.invalidations())
}
