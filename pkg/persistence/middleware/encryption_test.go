package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/memory"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/persistence/middleware"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.SessionStore, cfg middleware.EncryptionConfig) ports.SessionStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunSessionStoreContract(t, store)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	sess := domain.NewSession("u1", time.Now())
	sess.EnterStep("onboarding", "ask_birth_date")
	sess.ContextData["birth_date"] = "14/02/1990"

	ok, err := secure.CompareAndSet(ctx, "u1", 0, sess)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), sess.Version)

	raw, err := underlying.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, raw.ContextData, "birth_date")
	assert.Contains(t, raw.ContextData, middleware.EnvelopeKey)
	assert.Equal(t, "ask_birth_date", raw.ActiveStepID, "position stays readable")

	loaded, err := secure.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "14/02/1990", loaded.ContextData["birth_date"])
	assert.Equal(t, int64(1), loaded.Version)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	secureOld := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	sess := domain.NewSession("u1", time.Now())
	sess.ContextData["data"] = "encrypted-with-old-key"
	ok, err := secureOld.CompareAndSet(ctx, "u1", 0, sess)
	require.NoError(t, err)
	require.True(t, ok)

	secureNew := encrypted(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := secureNew.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-with-old-key", loaded.ContextData["data"])

	loaded.ContextData["data"] = "encrypted-with-new-key"
	ok, err = secureNew.CompareAndSet(ctx, "u1", loaded.Version, loaded)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = secureOld.Get(ctx, "u1")
	assert.Error(t, err, "the old key alone cannot read new writes")
}

func TestEncryptionMiddleware_RejectsPlainSessions(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	ok, err := underlying.CompareAndSet(ctx, "u1", 0, domain.NewSession("u1", time.Now()))
	require.NoError(t, err)
	require.True(t, ok)

	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err = secure.Get(ctx, "u1")
	assert.ErrorIs(t, err, middleware.ErrMissingEnvelope)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	parsed, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = middleware.ParseKey("not base64!")
	assert.Error(t, err)

	_, err = middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}
