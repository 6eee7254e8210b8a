package ports

import (
	"context"
	"testing"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	userID := "contract-user-" + time.Now().Format("20060102150405.000000")

	t.Run("Create And Get", func(t *testing.T) {
		s := domain.NewSession(userID, time.Now().UTC())
		s.EnterStep("onboarding", "ask_name")
		s.ContextData["name"] = "Ana"

		ok, err := store.CompareAndSet(ctx, userID, 0, s)
		require.NoError(t, err, "CompareAndSet should not return error")
		require.True(t, ok, "creating an absent session must succeed")
		assert.Equal(t, int64(1), s.Version)

		loaded, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, userID, loaded.UserID)
		assert.Equal(t, "onboarding", loaded.ActiveFlowID)
		assert.Equal(t, "ask_name", loaded.ActiveStepID)
		assert.Equal(t, "Ana", loaded.ContextData["name"])
		assert.Equal(t, int64(1), loaded.Version)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+userID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Stale Version Rejected", func(t *testing.T) {
		s := domain.NewSession(userID, time.Now().UTC())

		ok, err := store.CompareAndSet(ctx, userID, 0, s)
		require.NoError(t, err)
		assert.False(t, ok, "creating over an existing session must fail")

		ok, err = store.CompareAndSet(ctx, userID, 7, s)
		require.NoError(t, err)
		assert.False(t, ok, "a version from the future must fail")

		loaded, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "onboarding", loaded.ActiveFlowID, "rejected writes must not change the record")
	})

	t.Run("Update Bumps Version", func(t *testing.T) {
		loaded, err := store.Get(ctx, userID)
		require.NoError(t, err)

		next := loaded.Clone()
		next.ExitFlow()
		next.ContextData["sign"] = "leo"

		ok, err := store.CompareAndSet(ctx, userID, loaded.Version, next)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, loaded.Version+1, next.Version)

		again, err := store.Get(ctx, userID)
		require.NoError(t, err)
		assert.False(t, again.InFlow())
		assert.Equal(t, "leo", again.ContextData["sign"])
		assert.Equal(t, loaded.Version+1, again.Version)
	})

	t.Run("List", func(t *testing.T) {
		other := userID + "-2"
		ok, err := store.CompareAndSet(ctx, other, 0, domain.NewSession(other, time.Now().UTC()))
		require.NoError(t, err)
		require.True(t, ok)
		defer func() { _ = store.Delete(ctx, other) }()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, userID)
		assert.Contains(t, ids, other)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Delete(ctx, userID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Get(ctx, userID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Get after Delete should return ErrSessionNotFound")

		require.NoError(t, store.Delete(ctx, userID), "deleting twice is not an error")

		ok, err := store.CompareAndSet(ctx, userID, 0, domain.NewSession(userID, time.Now().UTC()))
		require.NoError(t, err)
		assert.True(t, ok, "a deleted session can be created again")
		_ = store.Delete(ctx, userID)
	})
}

// RunDeduplicatorContract verifies claim/release semantics of a Deduplicator.
func RunDeduplicatorContract(t *testing.T, d Deduplicator) {
	ctx := context.Background()
	key := "SM" + time.Now().Format("150405.000000")

	first, err := d.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := d.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, second, "a claimed key must not be claimable twice")

	require.NoError(t, d.Release(ctx, key))

	third, err := d.Claim(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, third, "a released key can be claimed again")
}
