package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"procura/internal/auth/models"
)

// keyPrefix namespaces all credential keys in a shared Redis.
const keyPrefix = "procura:"

// clearIfScript deletes both keys only while KEYS[1] still holds ARGV[1].
// A missing key compares equal to the empty string.
var clearIfScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false then current = "" end
if current ~= ARGV[1] then return 0 end
redis.call("DEL", KEYS[1], KEYS[2])
return 1
`)

// RedisStore keeps the token pair in Redis under a profile namespace and
// publishes every mutation, so processes sharing the profile stay in sync.
type RedisStore struct {
	client  redis.UniversalClient
	profile string
	id      string
	logger  *slog.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisLogger sets the logger for change notifications that fail after
// the write itself succeeded.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore constructs a Redis-backed credential store for profile.
func NewRedisStore(client redis.UniversalClient, profile string, opts ...RedisOption) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	s := &RedisStore{client: client, profile: profile, id: uuid.NewString(), logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies this store instance as the origin of its events.
func (s *RedisStore) ID() string {
	return s.id
}

func (s *RedisStore) key(name string) string {
	return keyPrefix + s.profile + ":" + name
}

func (s *RedisStore) channel() string {
	return s.key("changes")
}

func (s *RedisStore) Save(ctx context.Context, pair models.TokenPair) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyAccessToken), pair.AccessToken, 0)
		pipe.Set(ctx, s.key(KeyRefreshToken), pair.RefreshToken, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	s.publish(ctx, OpSave)
	return nil
}

func (s *RedisStore) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

func (s *RedisStore) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

func (s *RedisStore) get(ctx context.Context, name string) (string, error) {
	val, err := s.client.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", name, err)
	}
	return val, nil
}

func (s *RedisStore) SetAccessToken(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key(KeyAccessToken), token, 0).Err(); err != nil {
		return fmt.Errorf("set access token: %w", err)
	}
	s.publish(ctx, OpSetAccess)
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(KeyAccessToken), s.key(KeyRefreshToken)).Err(); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	s.publish(ctx, OpClear)
	return nil
}

func (s *RedisStore) ClearIf(ctx context.Context, accessToken string) (bool, error) {
	keys := []string{s.key(KeyAccessToken), s.key(KeyRefreshToken)}
	cleared, err := clearIfScript.Run(ctx, s.client, keys, accessToken).Int()
	if err != nil {
		return false, fmt.Errorf("clear tokens: %w", err)
	}
	if cleared == 0 {
		return false, nil
	}
	s.publish(ctx, OpClear)
	return true, nil
}

// publish notifies other holders of the profile. The mutation has already
// committed by the time it runs, so a failure is logged rather than returned;
// subscribers that miss it catch up on their next revalidation.
func (s *RedisStore) publish(ctx context.Context, op Op) {
	payload, err := json.Marshal(Event{Op: op, Origin: s.id})
	if err == nil {
		err = s.client.Publish(ctx, s.channel(), payload).Err()
	}
	if err != nil {
		s.logger.WarnContext(ctx, "credential change notification failed",
			"op", string(op),
			"profile", s.profile,
			"error", err,
		)
	}
}

// Subscribe listens on the profile's change channel until ctx is done.
// It returns once the subscription is confirmed by the server.
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := s.client.Subscribe(ctx, s.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close() //nolint:errcheck // best-effort cleanup on subscribe failure
		return nil, fmt.Errorf("subscribe to credential changes: %w", err)
	}

	out := make(chan Event, eventBuffer)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		defer pubsub.Close() //nolint:errcheck // connection teardown
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out, nil
}

var (
	_ Store    = (*RedisStore)(nil)
	_ Notifier = (*RedisStore)(nil)
)
