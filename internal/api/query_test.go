package api

import (
	"net/url"

	dErrors "procura/pkg/domain-errors"
	fixtures "procura/pkg/testutil"
	"procura/pkg/testutil/backend"
)

type budget struct {
	ProjectID string  `json:"projectId"`
	Budget    float64 `json:"budget"`
	Committed float64 `json:"committed"`
}

type searchResult struct {
	Query   string           `json:"query"`
	Results []map[string]any `json:"results"`
}

func (s *ClientSuite) TestResolvePath() {
	cases := []struct {
		name    string
		key     []string
		want    string
		wantErr bool
	}{
		{name: "single segment", key: []string{"projects"}, want: "/projects"},
		{name: "resource by id", key: []string{"projects", "p-100"}, want: "/projects/p-100"},
		{name: "sub-resource", key: []string{"projects", "p-100", "budget"}, want: "/projects/p-100/budget"},
		{name: "escapes segments", key: []string{"vendors", "a/b c"}, want: "/vendors/a%2Fb%20c"},
		{name: "empty key", key: nil, wantErr: true},
		{name: "too deep", key: []string{"a", "b", "c", "d"}, wantErr: true},
		{name: "blank segment", key: []string{"projects", " "}, wantErr: true},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			got, err := ResolvePath(tc.key)
			if tc.wantErr {
				s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
				return
			}
			s.Require().NoError(err)
			s.Equal(tc.want, got)
		})
	}
}

func (s *ClientSuite) TestOn401String() {
	s.Equal("throw", On401Throw.String())
	s.Equal("returnNull", On401ReturnNull.String())
}

func (s *ClientSuite) TestQueryFetch_DecodesResource() {
	s.login(fixtures.TestUsers.PM)

	got, err := QueryFetch[budget](s.ctx, s.newClient(), []string{"projects", backend.ProjectID, "budget"}, On401Throw)

	s.Require().NoError(err)
	s.Equal(backend.ProjectID, got.ProjectID)
	s.Equal(2500000.0, got.Budget)
	s.Equal(812000.0, got.Committed)
}

func (s *ClientSuite) TestQueryFetch_Params() {
	s.login(fixtures.TestUsers.Field)

	got, err := QueryFetchParams[searchResult](s.ctx, s.newClient(), []string{"search"},
		url.Values{"q": {"rebar"}}, On401Throw)

	s.Require().NoError(err)
	s.Equal("rebar", got.Query)
	s.Len(got.Results, 2)
}

func (s *ClientSuite) TestQueryFetch_BadKeySendsNothing() {
	s.login(fixtures.TestUsers.PM)
	s.backend.ResetCalls()

	_, err := QueryFetch[budget](s.ctx, s.newClient(), []string{}, On401Throw)

	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	s.Zero(s.backend.Calls("/"))
}

func (s *ClientSuite) TestQueryFetch_UnauthorizedBehaviour() {
	s.Run("return null yields nil result and no error", func() {
		got, err := QueryFetch[[]map[string]any](s.ctx, s.newClient(), []string{"projects"}, On401ReturnNull)
		s.NoError(err)
		s.Nil(got)
	})

	s.Run("throw surfaces unauthorized", func() {
		got, err := QueryFetch[[]map[string]any](s.ctx, s.newClient(), []string{"projects"}, On401Throw)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Nil(got)
	})

	s.Run("return null still surfaces forbidden", func() {
		s.login(fixtures.TestUsers.Field)
		_, err := QueryFetch[[]map[string]any](s.ctx, s.newClient(), []string{"projects"}, On401ReturnNull)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ClientSuite) TestQueryFetch_ReturnNullAfterRejectedRefresh() {
	s.login(fixtures.TestUsers.PM)
	s.backend.ExpireAccessTokens()
	s.backend.RevokeRefreshTokens()

	got, err := QueryFetch[budget](s.ctx, s.newClient(), []string{"projects", backend.ProjectID, "budget"}, On401ReturnNull)

	s.NoError(err)
	s.Nil(got)
	s.Equal(1, s.invalidations())
}

func (s *ClientSuite) TestQueryFetch_UpstreamErrorIsNotSwallowed() {
	s.login(fixtures.TestUsers.PM)
	s.backend.FailNext("/projects", 502, 1, "bad gateway")

	_, err := QueryFetch[[]map[string]any](s.ctx, s.newClient(), []string{"projects"}, On401ReturnNull)

	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.Equal("bad gateway", err.Error())
}
