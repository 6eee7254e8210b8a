package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/testutils"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/file"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, file.NewStore(t.TempDir()))
}

func TestStore_PortableFileNames(t *testing.T) {
	dir := t.TempDir()
	store := file.NewStore(dir)
	ctx := context.Background()
	userID := "whatsapp:+15550001111"

	ok, err := store.CompareAndSet(ctx, userID, 0, domain.NewSession(userID, time.Now()))
	require.NoError(t, err)
	require.True(t, ok)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files are cleaned up")
	assert.NotContains(t, entries[0].Name(), ":")

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{userID}, ids)
}

func TestStore_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := file.NewStore(t.TempDir(),
		file.WithTTL(time.Hour),
		file.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	sess := domain.NewSession("u1", now.Add(-2*time.Hour))
	ok, err := store.CompareAndSet(ctx, "u1", 0, sess)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = store.Get(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// An expired session counts as absent, so it can be recreated from version 0.
	ok, err = store.CompareAndSet(ctx, "u1", 0, domain.NewSession("u1", now))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSource_Contract(t *testing.T) {
	dir := testutils.SetupFlowDir(t, map[string]string{
		"astro.yaml": testutils.AstroFlowsYAML,
		"notes.txt":  "ignored",
	})
	tests.ConfigSourceContractTest(t, file.NewSource(dir), []string{"onboarding", "compatibility"})
}

func TestSource_SplitDocumentsCompile(t *testing.T) {
	dir := testutils.SetupFlowDir(t, map[string]string{
		"menus.yaml": `
menus:
  - id: main
    options:
      - {id: hello, label: Say hello, flow: hello}
`,
		"flows/hello.json": `{"flows": [{"id": "hello", "steps": [{"id": "greet", "prompt": "Hello!", "next": "END"}]}]}`,
		".hidden/skip.yaml": `flows: [{id: broken}]`,
	})

	docs, err := file.NewSource(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)

	set, err := catalog.Compile(docs...)
	require.NoError(t, err)
	_, err = set.Flow("hello")
	assert.NoError(t, err)
}

func TestSource_SingleFileAndErrors(t *testing.T) {
	dir := testutils.SetupFlowDir(t, map[string]string{"astro.yml": testutils.AstroFlowsYAML})

	docs, err := file.NewSource(filepath.Join(dir, "astro.yml")).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = file.NewSource(filepath.Join(dir, "missing")).Load(context.Background())
	assert.Error(t, err)

	_, err = file.NewSource(t.TempDir()).Load(context.Background())
	assert.Error(t, err, "an empty directory holds no flows")

	bad := testutils.SetupFlowDir(t, map[string]string{"bad.yaml": "flows: [unclosed"})
	_, err = file.NewSource(bad).Load(context.Background())
	assert.Error(t, err)
}

func TestSource_Watch(t *testing.T) {
	dir := testutils.SetupFlowDir(t, map[string]string{"astro.yaml": testutils.AstroFlowsYAML})
	source := file.NewSource(dir, file.WithDebounce(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := source.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte("reset_keywords: [stop]\n"), 0o644))

	select {
	case <-changes:
	case <-time.After(3 * time.Second):
		t.Fatal("expected a change signal")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-changes:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "the channel closes with the context")
}
