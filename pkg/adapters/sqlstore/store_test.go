package sqlstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/sqlstore"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, opts ...sqlstore.Option) *sqlstore.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "db", "astrobot.db")
	store, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, dsn, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, openSQLite(t))
}

func TestSQLiteDeduplicator_Contract(t *testing.T) {
	ports.RunDeduplicatorContract(t, openSQLite(t))
}

func TestSQLiteStore_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := openSQLite(t,
		sqlstore.WithTTL(time.Hour),
		sqlstore.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	stale := domain.NewSession("old", now.Add(-2*time.Hour))
	ok, err := store.CompareAndSet(ctx, "old", 0, stale)
	require.NoError(t, err)
	require.True(t, ok)

	fresh := domain.NewSession("new", now)
	ok, err = store.CompareAndSet(ctx, "new", 0, fresh)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	ok, err = store.CompareAndSet(ctx, "old", 1, stale)
	require.NoError(t, err)
	assert.False(t, ok, "an expired session cannot be updated")

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)

	n, err := store.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err = store.CompareAndSet(ctx, "old", 0, domain.NewSession("old", now))
	require.NoError(t, err)
	assert.True(t, ok, "an expired session is absent")
}

func TestSQLiteStore_ConcurrentWritersOneWins(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 8; i++ {
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
}

func TestSQLiteDeduplicator_ExpiredClaimCanBeRetaken(t *testing.T) {
	now := time.Now()
	store := openSQLite(t, sqlstore.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	ok, err := store.Claim(ctx, "SM1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = store.Claim(ctx, "SM1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, "")
	assert.Error(t, err)

	_, err = sqlstore.Open(ctx, "mysql", "dsn")
	assert.ErrorContains(t, err, "unsupported")
}
