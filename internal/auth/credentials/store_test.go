package credentials

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"procura/internal/auth/models"
)

var testPair = models.TokenPair{AccessToken: "aaa.bbb.ccc", RefreshToken: "refresh-1"}

// StoreContractSuite runs the Store contract against each implementation.
type StoreContractSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
}

func TestMemoryStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func(*testing.T) Store {
		return NewMemoryStore()
	}})
}

func TestFileStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir(), "contract")
		require.NoError(t, err)
		return s
	}})
}

func TestSealedFileStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func(t *testing.T) Store {
		s, err := NewFileStore(t.TempDir(), "contract", WithPassphrase("correct horse"))
		require.NoError(t, err)
		return s
	}})
}

func TestRedisStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedisStore(client, "contract")
	}})
}

func (s *StoreContractSuite) TestEmptyStoreReturnsBlankTokens() {
	store := s.newStore(s.T())
	ctx := context.Background()

	access, err := store.AccessToken(ctx)
	s.Require().NoError(err)
	s.Empty(access)

	refresh, err := store.RefreshToken(ctx)
	s.Require().NoError(err)
	s.Empty(refresh)
}

func (s *StoreContractSuite) TestSaveAndRead() {
	store := s.newStore(s.T())
	ctx := context.Background()

	s.Require().NoError(store.Save(ctx, testPair))

	access, err := store.AccessToken(ctx)
	s.Require().NoError(err)
	s.Equal(testPair.AccessToken, access)

	refresh, err := store.RefreshToken(ctx)
	s.Require().NoError(err)
	s.Equal(testPair.RefreshToken, refresh)
}

func (s *StoreContractSuite) TestSetAccessTokenKeepsRefreshToken() {
	store := s.newStore(s.T())
	ctx := context.Background()
	s.Require().NoError(store.Save(ctx, testPair))

	s.Require().NoError(store.SetAccessToken(ctx, "new.access.token"))

	access, _ := store.AccessToken(ctx)
	refresh, _ := store.RefreshToken(ctx)
	s.Equal("new.access.token", access)
	s.Equal(testPair.RefreshToken, refresh)
}

func (s *StoreContractSuite) TestClear() {
	store := s.newStore(s.T())
	ctx := context.Background()
	s.Require().NoError(store.Save(ctx, testPair))

	s.Require().NoError(store.Clear(ctx))
	s.Require().NoError(store.Clear(ctx), "clearing twice is not an error")

	access, _ := store.AccessToken(ctx)
	refresh, _ := store.RefreshToken(ctx)
	s.Empty(access)
	s.Empty(refresh)
}

func (s *StoreContractSuite) TestClearIf() {
	ctx := context.Background()

	s.Run("clears when the stored access token matches", func() {
		store := s.newStore(s.T())
		s.Require().NoError(store.Save(ctx, testPair))

		cleared, err := store.ClearIf(ctx, testPair.AccessToken)
		s.Require().NoError(err)
		s.True(cleared)

		access, _ := store.AccessToken(ctx)
		refresh, _ := store.RefreshToken(ctx)
		s.Empty(access)
		s.Empty(refresh)
	})

	s.Run("keeps a pair saved after the failing token was issued", func() {
		store := s.newStore(s.T())
		s.Require().NoError(store.Save(ctx, testPair))
		newer := models.TokenPair{AccessToken: "ddd.eee.fff", RefreshToken: "refresh-2"}
		s.Require().NoError(store.Save(ctx, newer))

		cleared, err := store.ClearIf(ctx, testPair.AccessToken)
		s.Require().NoError(err)
		s.False(cleared)

		access, _ := store.AccessToken(ctx)
		refresh, _ := store.RefreshToken(ctx)
		s.Equal(newer.AccessToken, access)
		s.Equal(newer.RefreshToken, refresh)
	})

	s.Run("empty store is already clear", func() {
		store := s.newStore(s.T())

		cleared, err := store.ClearIf(ctx, "")
		s.Require().NoError(err)
		s.True(cleared)
	})
}

func (s *StoreContractSuite) TestStoresWithoutValidating() {
	store := s.newStore(s.T())
	ctx := context.Background()

	s.Require().NoError(store.Save(ctx, models.TokenPair{AccessToken: "garbage"}))
	access, err := store.AccessToken(ctx)
	s.Require().NoError(err)
	s.Equal("garbage", access)
}

func TestMemoryStore_NotifiesSubscribers(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := store.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, testPair))
	require.NoError(t, store.Clear(ctx))

	assert.Equal(t, Event{Op: OpSave, Origin: store.ID()}, receive(t, events))
	assert.Equal(t, Event{Op: OpClear, Origin: store.ID()}, receive(t, events))

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-events
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir, "site-office")
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, testPair))

	second, err := NewFileStore(dir, "site-office")
	require.NoError(t, err)
	access, err := second.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, testPair.AccessToken, access)

	info, err := os.Stat(first.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(fileMode), info.Mode().Perm())
}

func TestFileStore_SealedFileHidesTokens(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir, "sealed", WithPassphrase("s3cret"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, testPair))

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), testPair.RefreshToken)
	assert.Contains(t, string(raw), `"sealed":true`)
}

func TestFileStore_WrongPassphraseFails(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir, "sealed", WithPassphrase("right"))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, testPair))

	wrong, err := NewFileStore(dir, "sealed", WithPassphrase("wrong"))
	require.NoError(t, err)
	_, err = wrong.AccessToken(ctx)
	assert.ErrorIs(t, err, errOpen)

	noKey, err := NewFileStore(dir, "sealed")
	require.NoError(t, err)
	_, err = noKey.AccessToken(ctx)
	assert.ErrorIs(t, err, errOpen)
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	_, err := NewFileStore("", "x")
	assert.Error(t, err)
}

func TestRedisStore_PropagatesChangesAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = clientA.Close()
		_ = clientB.Close()
	})

	tabA := NewRedisStore(clientA, "shared")
	tabB := NewRedisStore(clientB, "shared")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := tabB.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, tabA.Save(ctx, testPair))
	ev := receive(t, events)
	assert.Equal(t, OpSave, ev.Op)
	assert.Equal(t, tabA.ID(), ev.Origin)

	access, err := tabB.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, testPair.AccessToken, access)

	require.NoError(t, tabA.Clear(ctx))
	assert.Equal(t, OpClear, receive(t, events).Op)

	access, err = tabB.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, access)
}

// failPublish rejects PUBLISH so writes commit but notifications do not.
type failPublish struct{}

func (failPublish) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failPublish) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "publish" {
			err := errors.New("publish unavailable")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (failPublish) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisStore_CommittedWriteSurvivesNotificationFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client.AddHook(failPublish{})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	store := NewRedisStore(client, "flaky")
	require.NoError(t, store.Save(ctx, testPair))

	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, testPair.AccessToken, access)

	require.NoError(t, store.SetAccessToken(ctx, "new.access.token"))
	cleared, err := store.ClearIf(ctx, "new.access.token")
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.False(t, mr.Exists("procura:flaky:accessToken"))
}

func TestRedisStore_ProfilesAreIsolated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	a := NewRedisStore(client, "alice")
	b := NewRedisStore(client, "bob")
	require.NoError(t, a.Save(ctx, testPair))

	access, err := b.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, access)
	assert.True(t, mr.Exists("procura:alice:accessToken"))
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for credential event")
		return Event{}
	}
}
