package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "astrobot:"

// Store implements ports.SessionStore using Redis.
//
// Each session is one JSON value. CompareAndSet runs inside WATCH/MULTI so
// concurrent writers from any replica lose cleanly instead of overwriting.
// Expiry uses Redis key TTLs, refreshed on every write.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL expires sessions idle for longer than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock overrides the time source used to score the session index.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open parses a redis:// URL and returns a connected client.
func Open(ctx context.Context, url string) (*backend.Client, error) {
	opts, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := backend.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return client, nil
}

// NewFromClient creates a store on an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(userID string) string {
	return s.prefix + "session:" + userID
}

func (s *Store) indexKey() string {
	return s.prefix + "session-index"
}

// Get retrieves the session from Redis.
func (s *Store) Get(ctx context.Context, userID string) (*domain.Session, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(val, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// CompareAndSet stores next if the live version equals expected.
func (s *Store) CompareAndSet(ctx context.Context, userID string, expected int64, next *domain.Session) (bool, error) {
	key := s.key(userID)

	record := *next
	record.Version = expected + 1
	data, err := json.Marshal(&record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}

	swapped := false
	err = s.client.Watch(ctx, func(tx *backend.Tx) error {
		current, err := s.storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != expected {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: s.expiryScore(), Member: userID})
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key)

	if errors.Is(err, backend.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to save session to redis: %w", err)
	}
	if swapped {
		next.Version = record.Version
	}
	return swapped, nil
}

func (s *Store) storedVersion(ctx context.Context, tx *backend.Tx, key string) (int64, error) {
	val, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, backend.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(val, &head); err != nil {
		return 0, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return head.Version, nil
}

// expiryScore orders the index by expiry time.
func (s *Store) expiryScore() float64 {
	if s.ttl == 0 {
		return math.Inf(1)
	}
	return float64(s.now().Add(s.ttl).Unix())
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(userID))
	pipe.ZRem(ctx, s.indexKey(), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

// List returns live sessions, pruning index entries whose key expired.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(s.now().Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(members) == 0 {
		return []string{}, nil
	}

	// The index is scored by wall clock; key TTLs are authoritative.
	pipe := s.client.Pipeline()
	exists := make([]*backend.IntCmd, len(members))
	for i, id := range members {
		exists[i] = pipe.Exists(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check sessions: %w", err)
	}

	ids := make([]string, 0, len(members))
	var stale []any
	for i, id := range members {
		if exists[i].Val() == 0 {
			stale = append(stale, id)
			continue
		}
		ids = append(ids, id)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
