package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"time"

	"procura/internal/api"
	"procura/internal/auth/credentials"
	"procura/internal/auth/service"
	"procura/internal/auth/state"
	"procura/internal/portal"
	"procura/internal/querycache"
	"procura/pkg/testutil/backend"
)

// tab is one portal instance over the scenario's shared credential store,
// the way browser tabs share local storage.
type tab struct {
	state  *state.State
	cache  *querycache.Cache
	server *httptest.Server
}

// TestContext holds state between test steps.
type TestContext struct {
	Backend          *backend.Backend
	backendServer    *httptest.Server
	BaseURL          string
	Store            *credentials.MemoryStore
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	tabs             map[string]*tab
	current          string
	logger           *slog.Logger
}

// NewTestContext starts a fresh backend and an empty shared store.
func NewTestContext() *TestContext {
	b := backend.New()
	srv := httptest.NewServer(b.Handler())
	return &TestContext{
		Backend:       b,
		backendServer: srv,
		BaseURL:       srv.URL + "/api",
		Store:         credentials.NewMemoryStore(),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		tabs:   make(map[string]*tab),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Close stops every tab and the backend.
func (tc *TestContext) Close() {
	for _, t := range tc.tabs {
		t.server.Close()
		t.state.Close()
	}
	tc.backendServer.Close()
}

// OpenTab wires a portal over the shared store, as the portal binary does,
// and makes it the current tab.
func (tc *TestContext) OpenTab(name string) error {
	if old, ok := tc.tabs[name]; ok {
		old.server.Close()
		old.state.Close()
	}

	auth := service.New(tc.Store, tc.BaseURL, service.WithLogger(tc.logger))
	cache := querycache.New()
	st := state.New(auth, cache, state.WithNotifier(tc.Store), state.WithLogger(tc.logger))
	client := api.New(tc.BaseURL, tc.Store,
		api.WithRefresher(auth),
		api.WithSessionInvalidator(st),
		api.WithLogger(tc.logger),
	)
	if err := st.Start(context.Background()); err != nil {
		return fmt.Errorf("start tab %s: %w", name, err)
	}

	router := portal.NewRouter(portal.New(st, client, cache, tc.logger), portal.RouterConfig{Logger: tc.logger})
	tc.tabs[name] = &tab{state: st, cache: cache, server: httptest.NewServer(router)}
	tc.current = name
	return nil
}

func (tc *TestContext) tab(name string) (*tab, error) {
	t, ok := tc.tabs[name]
	if !ok {
		return nil, fmt.Errorf("tab %q is not open", name)
	}
	return t, nil
}

// Do sends a request to the current tab and stores the response.
func (tc *TestContext) Do(method, path string, body io.Reader, contentType string) error {
	t, err := tc.tab(tc.current)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), method, t.server.URL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// Login posts credentials to the current tab's login view.
func (tc *TestContext) Login(email, password string) error {
	form := url.Values{"email": {email}, "password": {password}}
	return tc.Do(http.MethodPost, "/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// GetResponseField extracts a top-level field from the JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

func (tc *TestContext) logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// LastStatus returns the last response status, or 0.
func (tc *TestContext) LastStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}
