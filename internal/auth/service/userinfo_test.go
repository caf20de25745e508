package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/stretchr/testify/mock"

	"procura/internal/auth/credentials"
	"procura/internal/auth/models"
	fixtures "procura/pkg/testutil"
	"procura/pkg/testutil/backend"
	dErrors "procura/pkg/domain-errors"
)

func (s *ServiceSuite) TestCurrentUser() {
	s.Run("no stored token returns nil without a request", func() {
		s.backend.ResetCalls()

		user, err := s.service.CurrentUser(s.ctx)

		s.NoError(err)
		s.Nil(user)
		s.Zero(s.backend.Calls(backend.PathMe))
	})

	s.Run("returns the backend's view of the user", func() {
		s.loginAs(fixtures.TestUsers.AP)

		user, err := s.service.CurrentUser(s.ctx)

		s.Require().NoError(err)
		s.Equal(fixtures.TestUsers.AP, *user)
	})

	s.Run("401 logs out and returns nil", func() {
		s.loginAs(fixtures.TestUsers.AP)
		s.backend.ExpireAccessTokens()

		user, err := s.service.CurrentUser(s.ctx)

		s.NoError(err)
		s.Nil(user)
		s.True(s.storedPair().IsZero())
	})

	s.Run("other statuses are upstream errors and keep the session", func() {
		login := s.loginAs(fixtures.TestUsers.AP)
		s.backend.FailNext(backend.PathMe, http.StatusInternalServerError, 1, `{"error":"db down"}`)

		user, err := s.service.CurrentUser(s.ctx)

		s.Nil(user)
		s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
		s.Contains(err.Error(), "500")
		s.Contains(err.Error(), "db down")
		s.Equal(login.Tokens(), s.storedPair())
	})
}

func (s *ServiceSuite) TestCurrentUser_TransportFailureKeepsSession() {
	store := credentials.NewMemoryStore()
	pair := models.TokenPair{AccessToken: "a.b.c", RefreshToken: "r"}
	s.Require().NoError(store.Save(s.ctx, pair))
	doer := new(mockDoer)
	doer.On("Do", mock.Anything).Return(nil, errors.New("network is unreachable"))
	svc := New(store, "http://backend.invalid/api", WithHTTPClient(doer))

	user, err := svc.CurrentUser(s.ctx)

	s.Nil(user)
	s.True(dErrors.HasCode(err, dErrors.CodeTransport))
	access, _ := store.AccessToken(s.ctx)
	s.Equal(pair.AccessToken, access)
}

func (s *ServiceSuite) TestCurrentUser_LoginDuringSlowLoadKeepsNewSession() {
	s.loginAs(fixtures.TestUsers.AP)
	s.backend.ExpireAccessTokens()
	s.backend.SetPathLatency(backend.PathMe, 300*time.Millisecond)

	type result struct {
		user *models.AuthUser
		err  error
	}
	done := make(chan result, 1)
	go func() {
		user, err := s.service.CurrentUser(s.ctx)
		done <- result{user, err}
	}()
	s.Require().Eventually(func() bool {
		return s.backend.Calls(backend.PathMe) == 1
	}, time.Second, 5*time.Millisecond)

	login := s.loginAs(fixtures.TestUsers.Purchaser)

	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("current user load did not finish")
	}
	s.Require().NoError(res.err)
	s.Require().NotNil(res.user)
	s.Equal(fixtures.TestUsers.Purchaser, *res.user)
	s.Equal(login.Tokens(), s.storedPair())
}

func (s *ServiceSuite) TestEndSessionFor() {
	s.Run("clears the session the token belongs to", func() {
		login := s.loginAs(fixtures.TestUsers.AP)

		ended, err := s.service.EndSessionFor(s.ctx, login.AccessToken, "unauthorized")

		s.Require().NoError(err)
		s.True(ended)
		s.True(s.storedPair().IsZero())
	})

	s.Run("leaves a newer session in place", func() {
		old := s.loginAs(fixtures.TestUsers.AP)
		current := s.loginAs(fixtures.TestUsers.Purchaser)

		ended, err := s.service.EndSessionFor(s.ctx, old.AccessToken, "unauthorized")

		s.Require().NoError(err)
		s.False(ended)
		s.Equal(current.Tokens(), s.storedPair())
	})

	s.Run("already cleared store counts as ended", func() {
		old := s.loginAs(fixtures.TestUsers.AP)
		s.Require().NoError(s.store.Clear(s.ctx))

		ended, err := s.service.EndSessionFor(s.ctx, old.AccessToken, "unauthorized")

		s.Require().NoError(err)
		s.True(ended)
	})
}
