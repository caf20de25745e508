// Package guard gates portal views on the session state and the user's role.
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"procura/internal/auth/models"
	"procura/internal/auth/state"
	"procura/pkg/platform/httputil"
	request "procura/pkg/platform/middleware/request"
)

// Decision is the outcome of checking a session against a view's roles.
type Decision int

const (
	// Loading means the session is authenticated but the user is not known yet.
	Loading Decision = iota
	// Unauthenticated means there is no session.
	Unauthenticated
	// Forbidden means the user lacks every required role.
	Forbidden
	// Allow means the view may render.
	Allow
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// Decide checks snap against required. No required roles means any
// authenticated user is allowed.
func Decide(snap state.Snapshot, required ...models.Role) Decision {
	switch {
	case snap.IsLoading:
		return Loading
	case !snap.IsAuthenticated:
		return Unauthenticated
	case len(required) > 0 && (snap.User == nil || !models.HasRole(required, snap.User.Role)):
		return Forbidden
	default:
		return Allow
	}
}

// SessionSource provides the current session snapshot.
type SessionSource interface {
	Snapshot() state.Snapshot
}

const defaultLoginPath = "/login"

// Guard turns decisions into HTTP responses.
type Guard struct {
	source    SessionSource
	loginPath string
	logger    *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithLoginPath sets where unauthenticated requests are redirected.
func WithLoginPath(path string) Option {
	return func(g *Guard) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Guard reading sessions from source.
func New(source SessionSource, opts ...Option) *Guard {
	g := &Guard{
		source:    source,
		loginPath: defaultLoginPath,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type loadingResponse struct {
	Status string `json:"status"`
}

// Require returns middleware admitting only sessions whose user satisfies the
// least demanding of roles. Allowed requests carry the user in their context.
func (g *Guard) Require(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			snap := g.source.Snapshot()

			switch Decide(snap, roles...) {
			case Loading:
				w.Header().Set("Retry-After", "1")
				httputil.WriteJSON(w, http.StatusAccepted, loadingResponse{Status: "loading"})
			case Unauthenticated:
				target := g.loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusSeeOther)
			case Forbidden:
				g.logger.WarnContext(ctx, "view access denied",
					"path", r.URL.Path,
					"role", userRole(snap),
					"request_id", request.GetRequestID(ctx),
				)
				httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{
					Error:       "access_denied",
					Description: "Your role does not grant access to this page",
				})
			default:
				next.ServeHTTP(w, r.WithContext(WithUser(ctx, snap.User)))
			}
		})
	}
}

func userRole(snap state.Snapshot) string {
	if snap.User == nil {
		return ""
	}
	return string(snap.User.Role)
}

type contextKey struct{}

// WithUser returns a context carrying the admitted user.
func WithUser(ctx context.Context, user *models.AuthUser) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the user admitted by Require, or nil.
func UserFromContext(ctx context.Context) *models.AuthUser {
	user, _ := ctx.Value(contextKey{}).(*models.AuthUser)
	return user
}
