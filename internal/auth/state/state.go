// Package state keeps the portal's view of the session: whether it is
// authenticated, who the user is, and whether that user is still loading.
//
// Several State values may share one credential store, the way browser tabs
// share local storage. When the store can notify, each State re-validates on
// every storage change so logins and logouts propagate between them.
package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"procura/internal/auth/credentials"
	"procura/internal/auth/models"
	"procura/internal/querycache"
)

// Authenticator is the subset of the auth service the state drives.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*models.LoginResult, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*models.AuthUser, error)
	ValidateSession(ctx context.Context) (bool, error)
	EndSessionFor(ctx context.Context, accessToken, reason string) (bool, error)
}

// UserKey is the cache key of the current user.
var UserKey = querycache.Key{"users", "me"}

const (
	defaultUserLoadTimeout = 10 * time.Second
	// loadRetryDelay spaces background user loads after a failed one.
	loadRetryDelay = time.Second
)

// Snapshot is a consistent view of the session at one moment.
type Snapshot struct {
	User            *models.AuthUser `json:"user"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	IsLoading       bool             `json:"isLoading"`
}

// State owns the session flags and the user cache entry.
type State struct {
	auth            Authenticator
	cache           *querycache.Cache
	notifier        credentials.Notifier
	logger          *slog.Logger
	userLoadTimeout time.Duration
	now             func() time.Time

	mu            sync.Mutex
	authenticated bool
	user          *models.AuthUser
	loading       bool
	loadCancel    context.CancelFunc
	retryAt       time.Time
	// epoch changes whenever the session identity changes; loads started in
	// an older epoch drop their result.
	epoch       uint64
	subscribers map[int]chan Snapshot
	nextSubID   int
	closed      bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a State.
type Option func(*State)

// WithNotifier makes the state follow changes made to the shared store.
func WithNotifier(n credentials.Notifier) Option {
	return func(s *State) {
		s.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *State) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUserLoadTimeout bounds each background user load.
func WithUserLoadTimeout(d time.Duration) Option {
	return func(s *State) {
		if d > 0 {
			s.userLoadTimeout = d
		}
	}
}

// WithClock overrides the clock used for load retry spacing.
func WithClock(now func() time.Time) Option {
	return func(s *State) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an unauthenticated State. Call Start to read the stored session.
func New(auth Authenticator, cache *querycache.Cache, opts ...Option) *State {
	ctx, cancel := context.WithCancel(context.Background())
	s := &State{
		auth:            auth,
		cache:           cache,
		logger:          slog.Default(),
		userLoadTimeout: defaultUserLoadTimeout,
		now:             time.Now,
		subscribers:     make(map[int]chan Snapshot),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates the stored session and, with a notifier, begins following
// storage changes until Close.
func (s *State) Start(ctx context.Context) error {
	ok, err := s.auth.ValidateSession(ctx)
	if err != nil {
		return err
	}
	s.applySession(ctx, ok)

	if s.notifier == nil {
		return nil
	}
	events, err := s.notifier.Subscribe(s.ctx)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watch(events)
	}()
	return nil
}

// Close stops the storage watcher and any user load, then closes subscriber
// channels. It is safe to call more than once.
func (s *State) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		defer s.mu.Unlock()
		for id, ch := range s.subscribers {
			close(ch)
			delete(s.subscribers, id)
		}
	})
}

// Snapshot returns the current session view. An authenticated session without
// a user starts a background load.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLoadLocked()
	return s.snapshotLocked()
}

// HasRole reports whether the loaded user satisfies the least demanding of
// roles. It is false while no user is loaded.
func (s *State) HasRole(roles ...models.Role) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return false
	}
	return models.HasRole(roles, s.user.Role)
}

// Subscribe returns a channel that receives the latest snapshot after every
// change. Slow readers only see the most recent one. The returned func
// unsubscribes.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			close(sub)
			delete(s.subscribers, id)
		}
	}
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		User:            s.user,
		IsAuthenticated: s.authenticated,
		IsLoading:       s.authenticated && s.loading,
	}
}

// publishLocked hands the current snapshot to every subscriber, replacing any
// snapshot they have not read yet.
func (s *State) publishLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
