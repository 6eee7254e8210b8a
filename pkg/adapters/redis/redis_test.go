package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/redis"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunSessionStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTLExpiration(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Minute))
	ctx := context.Background()

	ok, err := store.CompareAndSet(ctx, "u1", 0, domain.NewSession("u1", time.Now()))
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ok, err = store.CompareAndSet(ctx, "u1", 0, domain.NewSession("u1", time.Now()))
	require.NoError(t, err)
	assert.True(t, ok, "an expired session is absent")
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	ok, err := store.CompareAndSet(ctx, "my-user", 0, domain.NewSession("my-user", time.Now()))
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, mr.Exists("custom:app:session:my-user"))
	assert.True(t, mr.Exists("custom:app:session-index"))
}

func TestRedisStore_ConcurrentWritersOneWins(t *testing.T) {
	_, client := setup(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.CompareAndSet(ctx, "race", 0, domain.NewSession("race", time.Now()))
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	sess, err := store.Get(ctx, "race")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.Version)
}

func TestRedisStore_FailedSwapKeepsVersion(t *testing.T) {
	_, client := setup(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	first := domain.NewSession("u1", time.Now())
	ok, err := store.CompareAndSet(ctx, "u1", 0, first)
	require.NoError(t, err)
	require.True(t, ok)

	late := domain.NewSession("u1", time.Now())
	ok, err = store.CompareAndSet(ctx, "u1", 0, late)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, late.Version)
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "test:", redis.WithRetryInterval(5*time.Millisecond))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "user-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:user-1"))

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "user-1", 5*time.Second)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:user-1"))

	unlock, err = locker.Lock(ctx, "user-1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestRedisLocker_ExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "test:", redis.WithRetryInterval(5*time.Millisecond))
	ctx := context.Background()

	stale, err := locker.Lock(ctx, "user-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = locker.Lock(ctx, "user-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("test:lock:user-1"), "the new holder keeps the lock")
}

func TestRedisDeduplicator_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunDeduplicatorContract(t, redis.NewDeduplicator(client, redis.DefaultPrefix))
}
