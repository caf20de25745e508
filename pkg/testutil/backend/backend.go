// Package backend is an in-process fake of the procurement REST backend.
//
// It issues real HS256 JWT access tokens, rotates refresh tokens on request,
// enforces role ranks on resources and exposes controls that let tests expire
// tokens, inject failures and count calls.
package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"procura/internal/auth/models"
	"procura/pkg/testutil"
)

// Paths served by the backend, relative to the API base URL.
const (
	PathLogin   = "/auth/login"
	PathRefresh = "/auth/refresh"
	PathMe      = "/users/me"
)

const (
	defaultAccessTTL = 15 * time.Minute
	defaultIssuer    = "procura-fake-backend"
	apiPrefix        = "/api"
)

// Claims are the access token claims issued by the fake backend.
type Claims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Resource is a JSON payload guarded by a minimum role. An empty MinRole
// admits any authenticated user.
type Resource struct {
	MinRole models.Role
	Body    any
}

type account struct {
	password string
	user     models.AuthUser
}

type failure struct {
	status    int
	body      string
	remaining int
}

// Backend is the fake procurement backend.
type Backend struct {
	mu            sync.Mutex
	signingKey    []byte
	accessTTL     time.Duration
	rotateRefresh bool
	latency       time.Duration
	pathLatency   map[string]time.Duration
	down          bool
	accounts      map[string]account
	refreshTokens map[string]string // refresh token -> user ID
	revoked       map[string]bool   // access token jti -> revoked
	issued        []string
	resources     map[string]Resource
	failures      map[string]*failure
	calls         map[string]int
	now           func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		if ttl > 0 {
			b.accessTTL = ttl
		}
	}
}

// WithRefreshRotation makes every refresh also issue a new refresh token.
func WithRefreshRotation() Option {
	return func(b *Backend) {
		b.rotateRefresh = true
	}
}

// WithSigningKey sets the HS256 key.
func WithSigningKey(key string) Option {
	return func(b *Backend) {
		if key != "" {
			b.signingKey = []byte(key)
		}
	}
}

// WithClock overrides the time source used for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a backend seeded with one account per role and a default
// procurement data set.
func New(opts ...Option) *Backend {
	b := &Backend{
		signingKey:    []byte("fake-backend-signing-key"),
		accessTTL:     defaultAccessTTL,
		accounts:      make(map[string]account),
		refreshTokens: make(map[string]string),
		revoked:       make(map[string]bool),
		resources:     make(map[string]Resource),
		failures:      make(map[string]*failure),
		pathLatency:   make(map[string]time.Duration),
		calls:         make(map[string]int),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, u := range testutil.AllTestUsers() {
		b.AddUser(u, testutil.DefaultPassword)
	}
	for path, res := range seedResources() {
		b.resources[path] = res
	}
	return b
}

// NewServer starts b on an httptest server and returns the API base URL.
// The server is closed when the test ends.
func NewServer(t testing.TB, opts ...Option) (*Backend, string) {
	t.Helper()
	b := New(opts...)
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv.URL + apiPrefix
}

// Handler returns the HTTP handler serving the API under /api.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "procura-fake-backend"})
	})
	r.Route(apiPrefix, func(r chi.Router) {
		r.Use(b.instrument)
		r.Post(PathLogin, b.handleLogin)
		r.Post(PathRefresh, b.handleRefresh)
		r.Get(PathMe, b.handleMe)
		r.Get("/*", b.handleResource)
	})
	return r
}

// AddUser registers an account. An existing account with the same email is replaced.
func (b *Backend) AddUser(user models.AuthUser, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[strings.ToLower(user.Email)] = account{password: password, user: user}
}

// SetRole changes the role of an existing account. Tokens issued afterwards
// carry the new role; /users/me reflects it immediately.
func (b *Backend) SetRole(email string, role models.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(email)
	if acc, ok := b.accounts[key]; ok {
		acc.user.Role = role
		b.accounts[key] = acc
	}
}

// SetResource registers or replaces the payload served at path (relative to
// the API base, e.g. "/rfqs").
func (b *Backend) SetResource(path string, res Resource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resources[strings.Trim(path, "/")] = res
}

// ExpireAccessTokens revokes every access token issued so far.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, jti := range b.issued {
		b.revoked[jti] = true
	}
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshTokens = make(map[string]string)
}

// FailNext makes the next n requests to path answer with status and body.
func (b *Backend) FailNext(path string, status, n int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[normalize(path)] = &failure{status: status, body: body, remaining: n}
}

// SetDown makes every API request fail with 503 while down is true.
func (b *Backend) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// SetLatency delays every API response by d.
func (b *Backend) SetLatency(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latency = d
}

// SetPathLatency delays responses on path by d, overriding SetLatency there.
// A zero d removes the override.
func (b *Backend) SetPathLatency(path string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d <= 0 {
		delete(b.pathLatency, normalize(path))
		return
	}
	b.pathLatency[normalize(path)] = d
}

// Calls returns how many requests reached path.
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[normalize(path)]
}

// ResetCalls zeroes all call counters.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = make(map[string]int)
}

// IssueAccessToken mints an access token for the account with email, as the
// login endpoint would.
func (b *Backend) IssueAccessToken(email string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[strings.ToLower(email)]
	if !ok {
		return "", jwt.ErrTokenInvalidSubject
	}
	return b.issueLocked(acc.user)
}

func (b *Backend) issueLocked(user models.AuthUser) (string, error) {
	now := b.now()
	jti := uuid.NewString()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    defaultIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.accessTTL)),
			ID:        jti,
		},
	})
	signed, err := token.SignedString(b.signingKey)
	if err != nil {
		return "", err
	}
	b.issued = append(b.issued, jti)
	return signed, nil
}

func (b *Backend) newRefreshTokenLocked(userID string) string {
	token := "rt_" + uuid.NewString()
	b.refreshTokens[token] = userID
	return token
}

func (b *Backend) userByIDLocked(id string) (models.AuthUser, bool) {
	for _, acc := range b.accounts {
		if acc.user.ID == id {
			return acc.user, true
		}
	}
	return models.AuthUser{}, false
}

// instrument counts calls, applies latency, and serves injected failures.
func (b *Backend) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := normalize(strings.TrimPrefix(r.URL.Path, apiPrefix))

		b.mu.Lock()
		b.calls[path]++
		latency := b.latency
		if d, ok := b.pathLatency[path]; ok {
			latency = d
		}
		down := b.down
		var injected *failure
		if f, ok := b.failures[path]; ok && f.remaining > 0 {
			f.remaining--
			injected = &failure{status: f.status, body: f.body}
		}
		b.mu.Unlock()

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}
		if down {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "Service unavailable"})
			return
		}
		if injected != nil {
			w.WriteHeader(injected.status)
			_, _ = w.Write([]byte(injected.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}
	access, err := b.issueLocked(acc.user)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "token signing failed"})
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResult{
		User:         acc.user,
		AccessToken:  access,
		RefreshToken: b.newRefreshTokenLocked(acc.user.ID),
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "refreshToken is required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.refreshTokens[req.RefreshToken]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
		return
	}
	user, ok := b.userByIDLocked(userID)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unknown user"})
		return
	}
	access, err := b.issueLocked(user)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "token signing failed"})
		return
	}
	result := models.RefreshResult{AccessToken: access}
	if b.rotateRefresh {
		delete(b.refreshTokens, req.RefreshToken)
		result.RefreshToken = b.newRefreshTokenLocked(user.ID)
	}
	writeJSON(w, http.StatusOK, result)
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := b.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (b *Backend) handleResource(w http.ResponseWriter, r *http.Request) {
	user, ok := b.authenticate(w, r)
	if !ok {
		return
	}
	path := strings.Trim(chi.URLParam(r, "*"), "/")

	b.mu.Lock()
	res, found := b.resources[path]
	b.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found: /" + path})
		return
	}
	if res.MinRole != "" && !models.HasRole([]models.Role{res.MinRole}, user.Role) {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Insufficient role"})
		return
	}
	body := res.Body
	if path == "search" {
		body = map[string]any{"query": r.URL.Query().Get("q"), "results": res.Body}
	}
	writeJSON(w, http.StatusOK, body)
}

// authenticate verifies the bearer token and returns the current account state.
func (b *Backend) authenticate(w http.ResponseWriter, r *http.Request) (models.AuthUser, bool) {
	raw, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || raw == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Missing bearer token"})
		return models.AuthUser{}, false
	}

	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return b.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid or expired token"})
		return models.AuthUser{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revoked[claims.ID] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token expired"})
		return models.AuthUser{}, false
	}
	user, ok := b.userByIDLocked(claims.Subject)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unknown user"})
		return models.AuthUser{}, false
	}
	return user, true
}

func normalize(path string) string {
	return "/" + strings.Trim(path, "/")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
