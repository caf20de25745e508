package credentials

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"procura/internal/auth/models"
)

// MemoryStore keeps the token pair in process memory.
// Every State sharing one MemoryStore sees the others' mutations, the way
// browser tabs share local storage.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	id     string

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		id:     uuid.NewString(),
		subs:   make(map[int]chan Event),
	}
}

// ID identifies this store instance as the origin of its events.
func (s *MemoryStore) ID() string {
	return s.id
}

func (s *MemoryStore) Save(_ context.Context, pair models.TokenPair) error {
	s.mu.Lock()
	s.values[KeyAccessToken] = pair.AccessToken
	s.values[KeyRefreshToken] = pair.RefreshToken
	s.mu.Unlock()

	s.publish(OpSave)
	return nil
}

func (s *MemoryStore) AccessToken(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[KeyAccessToken], nil
}

func (s *MemoryStore) RefreshToken(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[KeyRefreshToken], nil
}

func (s *MemoryStore) SetAccessToken(_ context.Context, token string) error {
	s.mu.Lock()
	s.values[KeyAccessToken] = token
	s.mu.Unlock()

	s.publish(OpSetAccess)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	delete(s.values, KeyAccessToken)
	delete(s.values, KeyRefreshToken)
	s.mu.Unlock()

	s.publish(OpClear)
	return nil
}

func (s *MemoryStore) ClearIf(_ context.Context, accessToken string) (bool, error) {
	s.mu.Lock()
	if s.values[KeyAccessToken] != accessToken {
		s.mu.Unlock()
		return false, nil
	}
	delete(s.values, KeyAccessToken)
	delete(s.values, KeyRefreshToken)
	s.mu.Unlock()

	s.publish(OpClear)
	return true, nil
}

// Subscribe registers for mutation events until ctx is done.
func (s *MemoryStore) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, eventBuffer)

	s.subMu.Lock()
	subID := s.nextID
	s.nextID++
	s.subs[subID] = ch
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subs, subID)
		close(ch)
		s.subMu.Unlock()
	}()

	return ch, nil
}

func (s *MemoryStore) publish(op Op) {
	ev := Event{Op: op, Origin: s.id}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

var (
	_ Store    = (*MemoryStore)(nil)
	_ Notifier = (*MemoryStore)(nil)
)
