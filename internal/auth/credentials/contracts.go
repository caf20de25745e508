// Package credentials holds the session's token pair in persistent storage.
//
// Stores perform plain key-value operations under two fixed keys and never
// validate what they hold; shape checks belong to the auth service. Stores that
// can observe writes made by other holders of the same storage (other "tabs"
// or processes) also implement Notifier.
package credentials

import (
	"context"

	"procura/internal/auth/models"
)

// Fixed storage keys.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// Store is the persistence contract for the session token pair.
// Getters return "" with a nil error when the token is absent.
//
// ClearIf removes the pair only while the stored access token still equals
// accessToken, reporting whether it did. A failure observed with an old token
// must not wipe a session that replaced it.
type Store interface {
	Save(ctx context.Context, pair models.TokenPair) error
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetAccessToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	ClearIf(ctx context.Context, accessToken string) (bool, error)
}

// Op names the mutation that produced an Event.
type Op string

const (
	OpSave      Op = "save"
	OpSetAccess Op = "set_access"
	OpClear     Op = "clear"
)

// Event reports a mutation of the shared storage.
type Event struct {
	Op     Op     `json:"op"`
	Origin string `json:"origin"` // ID of the store instance that made the change
}

// Notifier is implemented by stores that can report mutations, including
// those made by other processes sharing the same storage.
// The channel is closed when ctx is done.
type Notifier interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// eventBuffer bounds per-subscriber backlog. Any single event triggers a full
// revalidation, so dropping events behind a full buffer loses nothing.
const eventBuffer = 8
