package service

import (
	"procura/internal/auth/models"
	fixtures "procura/pkg/testutil"
)

func (s *ServiceSuite) TestLogout() {
	s.loginAs(fixtures.TestUsers.Field)
	s.backend.ResetCalls()

	s.Require().NoError(s.service.Logout(s.ctx))

	s.True(s.storedPair().IsZero())
	s.Zero(s.backend.Calls("/auth/login") + s.backend.Calls("/auth/refresh") + s.backend.Calls("/users/me"))
}

func (s *ServiceSuite) TestIsAuthenticated() {
	cases := []struct {
		name  string
		token string
		want  bool
	}{
		{"no token", "", false},
		{"well formed", "aaa.bbb.ccc", true},
		{"two segments", "aaa.bbb", false},
		{"four segments", "a.b.c.d", false},
		{"empty segment", "a..c", false},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.Require().NoError(s.store.Save(s.ctx, models.TokenPair{AccessToken: tc.token, RefreshToken: "r"}))

			ok, err := s.service.IsAuthenticated(s.ctx)

			s.Require().NoError(err)
			s.Equal(tc.want, ok)
			// IsAuthenticated never clears the store
			access, _ := s.store.AccessToken(s.ctx)
			s.Equal(tc.token, access)
		})
	}
}

func (s *ServiceSuite) TestValidateSession() {
	s.Run("malformed token is cleared", func() {
		s.Require().NoError(s.store.Save(s.ctx, models.TokenPair{AccessToken: "not-a-jwt", RefreshToken: "r"}))

		ok, err := s.service.ValidateSession(s.ctx)

		s.Require().NoError(err)
		s.False(ok)
		s.True(s.storedPair().IsZero())
	})

	s.Run("well formed token is kept", func() {
		s.Require().NoError(s.store.Save(s.ctx, models.TokenPair{AccessToken: "x.y.z", RefreshToken: "r"}))

		ok, err := s.service.ValidateSession(s.ctx)

		s.Require().NoError(err)
		s.True(ok)
		s.False(s.storedPair().IsZero())
	})

	s.Run("no token is unauthenticated", func() {
		s.Require().NoError(s.store.Clear(s.ctx))
		ok, err := s.service.ValidateSession(s.ctx)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *ServiceSuite) TestHasRole() {
	s.True(s.service.HasRole([]models.Role{models.RoleAP, models.RoleAdmin}, models.RoleAP))
	s.False(s.service.HasRole([]models.Role{models.RoleAdmin}, models.RolePurchaser))
	s.True(s.service.HasRole(nil, models.RoleField))
}
