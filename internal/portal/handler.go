// Package portal serves the procurement portal's views over HTTP.
//
// Every resource view is gated by the route guard, served from the response
// cache and loaded through the authorized request layer. A view whose load
// finds the session over redirects to the login view.
package portal

import (
	"context"
	"log/slog"

	"procura/internal/api"
	"procura/internal/auth/models"
	"procura/internal/auth/state"
	"procura/internal/guard"
	"procura/internal/querycache"
)

// Session is the session state the portal drives.
type Session interface {
	Snapshot() state.Snapshot
	Login(ctx context.Context, email, password string) (*models.LoginResult, error)
	Logout(ctx context.Context) error
	User(ctx context.Context) (*models.AuthUser, error)
}

// Handler serves the portal routes.
type Handler struct {
	session Session
	client  *api.Client
	cache   *querycache.Cache
	guard   *guard.Guard
	logger  *slog.Logger
}

// New creates the portal handler.
func New(session Session, client *api.Client, cache *querycache.Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		session: session,
		client:  client,
		cache:   cache,
		guard:   guard.New(session, guard.WithLogger(logger), guard.WithLoginPath(loginPath)),
		logger:  logger,
	}
}
