package e2e

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"procura/internal/auth/models"
)

const eventualTimeout = 2 * time.Second

// RegisterSteps registers all step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background steps
	ctx.Step(`^the procurement backend is running$`, tc.backendIsRunning)
	ctx.Step(`^tab "([^"]*)" is open$`, tc.openTab)
	ctx.Step(`^I switch to tab "([^"]*)"$`, tc.switchTab)

	// Session steps
	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, tc.logIn)
	ctx.Step(`^I log out$`, tc.logOut)
	ctx.Step(`^the stored access token is "([^"]*)"$`, tc.storeAccessToken)

	// Backend control steps
	ctx.Step(`^the backend expires all access tokens$`, tc.expireAccessTokens)
	ctx.Step(`^the backend revokes all refresh tokens$`, tc.revokeRefreshTokens)
	ctx.Step(`^the backend answers "([^"]*)" with status (\d+)$`, tc.failNext)
	ctx.Step(`^the backend call counters are reset$`, tc.resetCalls)

	// Request steps
	ctx.Step(`^I open "([^"]*)"$`, tc.open)

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, tc.responseShouldContain)
	ctx.Step(`^the response should not contain "([^"]*)"$`, tc.responseShouldNotContain)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, tc.responseFieldShouldBe)
	ctx.Step(`^I should be redirected to "([^"]*)"$`, tc.redirectedTo)
	ctx.Step(`^the backend should have received (\d+) calls? to "([^"]*)"$`, tc.backendCalls)
	ctx.Step(`^tab "([^"]*)" should be authenticated as "([^"]*)"$`, tc.tabAuthenticatedAs)
	ctx.Step(`^tab "([^"]*)" should not be authenticated$`, tc.tabNotAuthenticated)
	ctx.Step(`^the stored access token should be empty$`, tc.storedTokenEmpty)
	ctx.Step(`^the cache of tab "([^"]*)" should be empty$`, tc.cacheEmpty)
}

func (tc *TestContext) backendIsRunning(context.Context) error {
	return tc.GetHealth()
}

// GetHealth checks the backend answers its health probe.
func (tc *TestContext) GetHealth() error {
	resp, err := tc.HTTPClient.Get(tc.backendServer.URL + "/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health returned %d", resp.StatusCode)
	}
	return nil
}

func (tc *TestContext) openTab(_ context.Context, name string) error {
	return tc.OpenTab(name)
}

func (tc *TestContext) switchTab(_ context.Context, name string) error {
	if _, err := tc.tab(name); err != nil {
		return err
	}
	tc.current = name
	return nil
}

func (tc *TestContext) logIn(_ context.Context, email, password string) error {
	return tc.Login(email, password)
}

func (tc *TestContext) logOut(context.Context) error {
	return tc.Do(http.MethodPost, "/logout", nil, "")
}

func (tc *TestContext) storeAccessToken(ctx context.Context, token string) error {
	return tc.Store.Save(ctx, models.TokenPair{AccessToken: token, RefreshToken: "rt_unused"})
}

func (tc *TestContext) expireAccessTokens(context.Context) error {
	tc.Backend.ExpireAccessTokens()
	return nil
}

func (tc *TestContext) revokeRefreshTokens(context.Context) error {
	tc.Backend.RevokeRefreshTokens()
	return nil
}

func (tc *TestContext) failNext(_ context.Context, path string, status int) error {
	tc.Backend.FailNext(path, status, 1, `{"message":"injected failure"}`)
	return nil
}

func (tc *TestContext) resetCalls(context.Context) error {
	tc.Backend.ResetCalls()
	return nil
}

func (tc *TestContext) open(_ context.Context, path string) error {
	return tc.Do(http.MethodGet, path, nil, "")
}

func (tc *TestContext) responseStatusShouldBe(_ context.Context, expected int) error {
	if got := tc.LastStatus(); got != expected {
		return fmt.Errorf("expected status %d, got %d. Body: %s", expected, got, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseShouldContain(_ context.Context, text string) error {
	if !strings.Contains(string(tc.LastResponseBody), text) {
		return fmt.Errorf("response does not contain %q: %s", text, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseShouldNotContain(_ context.Context, text string) error {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return fmt.Errorf("response unexpectedly contains %q", text)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldBe(_ context.Context, field, expected string) error {
	value, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(value); got != expected {
		return fmt.Errorf("expected %s to be %q, got %q", field, expected, got)
	}
	return nil
}

func (tc *TestContext) redirectedTo(_ context.Context, location string) error {
	if got := tc.LastStatus(); got != http.StatusSeeOther {
		return fmt.Errorf("expected redirect, got status %d", got)
	}
	if got := tc.LastResponse.Header.Get("Location"); got != location {
		return fmt.Errorf("expected redirect to %q, got %q", location, got)
	}
	return nil
}

func (tc *TestContext) backendCalls(_ context.Context, expected int, path string) error {
	if got := tc.Backend.Calls(path); got != expected {
		return fmt.Errorf("expected %d calls to %s, got %d", expected, path, got)
	}
	return nil
}

// eventually polls cond until it holds or the timeout passes.
func eventually(cond func() bool, what string) error {
	deadline := time.Now().Add(eventualTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s", what)
}

func (tc *TestContext) tabAuthenticatedAs(_ context.Context, name, email string) error {
	t, err := tc.tab(name)
	if err != nil {
		return err
	}
	return eventually(func() bool {
		snap := t.state.Snapshot()
		return snap.IsAuthenticated && snap.User != nil && snap.User.Email == email
	}, "tab "+name+" to be authenticated as "+email)
}

func (tc *TestContext) tabNotAuthenticated(_ context.Context, name string) error {
	t, err := tc.tab(name)
	if err != nil {
		return err
	}
	return eventually(func() bool {
		return !t.state.Snapshot().IsAuthenticated
	}, "tab "+name+" to lose its session")
}

func (tc *TestContext) storedTokenEmpty(ctx context.Context) error {
	token, err := tc.Store.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		return fmt.Errorf("expected no stored access token, found one")
	}
	return nil
}

func (tc *TestContext) cacheEmpty(_ context.Context, name string) error {
	t, err := tc.tab(name)
	if err != nil {
		return err
	}
	if n := t.cache.Len(); n != 0 {
		return fmt.Errorf("expected empty cache, found %d entries", n)
	}
	return nil
}
