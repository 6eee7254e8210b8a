package astrobot_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	astrobot "github.com/jammysunshine/astro-whatsapp-bot"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/testutils"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/memory"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/registry"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const user = "whatsapp:+4915100000000"

func newEngine(t *testing.T, opts ...astrobot.Option) *astrobot.Engine {
	t.Helper()
	opts = append([]astrobot.Option{astrobot.WithSource(memory.NewSource(testutils.AstroDocs(t)...))}, opts...)
	eng, err := astrobot.New(context.Background(), "", opts...)
	require.NoError(t, err)
	return eng
}

func TestNew_InvalidDefinitionsAreFatal(t *testing.T) {
	source := memory.NewSource(map[string]any{
		"flows": []any{map[string]any{"id": "f", "steps": []any{map[string]any{"id": "a", "next": "nowhere"}}}},
	})

	_, err := astrobot.New(context.Background(), "", astrobot.WithSource(source))

	require.Error(t, err)
	var se *schema.SchemaError
	require.ErrorAs(t, err, &se)
	assert.GreaterOrEqual(t, len(se.Issues), 2, "dangling target and missing main menu")
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := astrobot.New(context.Background(), "")
	assert.Error(t, err)
}

func TestNew_StrictActions(t *testing.T) {
	_, err := astrobot.New(context.Background(), "",
		astrobot.WithSource(memory.NewSource(testutils.AstroDocs(t)...)),
		astrobot.WithStrictActions(true),
	)
	require.ErrorIs(t, err, astrobot.ErrUnregisteredActions)
	assert.Contains(t, err.Error(), "tarot.draw")

	// Lenient by default.
	newEngine(t)
}

func TestHandleInboundEvent_FirstContact(t *testing.T) {
	store := memory.NewStore()
	eng := newEngine(t, astrobot.WithStore(store))
	ctx := context.Background()

	replies, err := eng.HandleInboundEvent(ctx, user, domain.FreeText{Raw: "hi"})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "What would you like to do today?", replies[0].Body)

	sess, err := store.Get(ctx, user)
	require.NoError(t, err)
	assert.False(t, sess.InFlow())
	assert.Equal(t, int64(1), sess.Version)
	assert.Equal(t, user, sess.UserID)
}

func TestHandleInboundEvent_InvalidEvent(t *testing.T) {
	eng := newEngine(t)

	_, err := eng.HandleInboundEvent(context.Background(), " ", domain.FreeText{Raw: "hi"})
	assert.ErrorIs(t, err, astrobot.ErrInvalidEvent)
	_, err = eng.HandleInboundEvent(context.Background(), user, nil)
	assert.ErrorIs(t, err, astrobot.ErrInvalidEvent)
}

func TestHandleInboundEvent_Conversation(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()

	send := func(ev domain.IncomingEvent) []domain.OutgoingMessage {
		replies, err := eng.HandleInboundEvent(ctx, user, ev)
		require.NoError(t, err)
		return replies
	}

	send(domain.FreeText{Raw: "hi"})
	send(domain.MenuSelection{OptionID: "profile"})
	replies := send(domain.FreeText{Raw: "Grace"})
	require.Len(t, replies, 1)
	assert.Equal(t, "Thanks Grace! When were you born? (DD/MM/YYYY)", replies[0].Body)

	sess, err := eng.Session(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "ask_birth_date", sess.ActiveStepID)
	assert.Equal(t, "Grace", sess.ContextData["name"])

	require.NoError(t, eng.ResetSession(ctx, user))
	_, err = eng.Session(ctx, user)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	ids, err := eng.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// conflictingStore loses the next `losses` compare-and-set calls.
type conflictingStore struct {
	*memory.Store
	losses atomic.Int32
}

func (s *conflictingStore) CompareAndSet(ctx context.Context, userID string, expected int64, next *domain.Session) (bool, error) {
	if s.losses.Add(-1) >= 0 {
		return false, nil
	}
	return s.Store.CompareAndSet(ctx, userID, expected, next)
}

func TestHandleInboundEvent_SessionConflicts(t *testing.T) {
	var conflicts atomic.Int32
	hooks := domain.LifecycleHooks{
		OnConflict: func(context.Context, *domain.EventBase) { conflicts.Add(1) },
	}

	t.Run("retried once", func(t *testing.T) {
		conflicts.Store(0)
		store := &conflictingStore{Store: memory.NewStore()}
		store.losses.Store(1)
		eng := newEngine(t, astrobot.WithStore(store), astrobot.WithLifecycleHooks(hooks))

		replies, err := eng.HandleInboundEvent(context.Background(), user, domain.FreeText{Raw: "start"})
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Equal(t, "What's your name?", replies[0].Body)
		assert.Equal(t, int32(1), conflicts.Load())
	})

	t.Run("second conflict yields one generic message", func(t *testing.T) {
		conflicts.Store(0)
		store := &conflictingStore{Store: memory.NewStore()}
		store.losses.Store(2)
		eng := newEngine(t, astrobot.WithStore(store), astrobot.WithLifecycleHooks(hooks))

		replies, err := eng.HandleInboundEvent(context.Background(), user, domain.FreeText{Raw: "start"})
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Equal(t, catalog.DefaultMessages().Busy, replies[0].Body)
		assert.Equal(t, int32(2), conflicts.Load())

		_, err = store.Get(context.Background(), user)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "nothing was written")
	})
}

func TestHandleInboundEvent_SerializesPerUser(t *testing.T) {
	reg := registry.NewRegistry()
	reg.MustRegister("horoscope.daily", func(_ context.Context, actx domain.ActionContext) (domain.ActionResult, error) {
		n, _ := actx.Context["count"].(int)
		return domain.ActionResult{
			Success:          true,
			ContextPatch:     map[string]any{"count": n + 1},
			OutboundMessages: []domain.OutgoingMessage{domain.Text(fmt.Sprint(n + 1))},
		}, nil
	})
	store := memory.NewStore()
	eng := newEngine(t, astrobot.WithRegistry(reg), astrobot.WithStore(store))
	ctx := context.Background()

	const events = 25
	var wg sync.WaitGroup
	for i := 0; i < events; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.HandleInboundEvent(ctx, user, domain.MenuSelection{OptionID: "daily"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := store.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, events, sess.ContextData["count"], "no update was lost")
	assert.Equal(t, int64(events), sess.Version)
}

func TestHandleInboundEvent_DuplicateDeliveryGuard(t *testing.T) {
	spy := &testutils.ActionSpy{}
	reg := registry.NewRegistry()
	reg.MustRegister("horoscope.daily", spy.Handler(domain.ActionResult{Success: true}))
	eng := newEngine(t, astrobot.WithRegistry(reg))
	dedup := memory.NewDeduplicator()
	ctx := context.Background()

	deliver := func(messageID string) {
		claimed, err := dedup.Claim(ctx, messageID, time.Minute)
		require.NoError(t, err)
		if !claimed {
			return
		}
		_, err = eng.HandleInboundEvent(ctx, user, domain.MenuSelection{OptionID: "daily"})
		require.NoError(t, err)
	}

	deliver("SM001")
	deliver("SM001")
	assert.Equal(t, 1, spy.Count("horoscope.daily"))

	deliver("SM002")
	assert.Equal(t, 2, spy.Count("horoscope.daily"))
}

func TestWatchConfig_ReturnsStaleSessionsToMenu(t *testing.T) {
	source := memory.NewSource(testutils.AstroDocs(t)...)
	eng, err := astrobot.New(context.Background(), "", astrobot.WithSource(source))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = eng.WatchConfig(ctx) }()

	_, err = eng.HandleInboundEvent(ctx, user, domain.FreeText{Raw: "match"})
	require.NoError(t, err)

	// The next generation drops the compatibility flow.
	trimmed := testutils.AstroDocs(t)[0]
	flows := trimmed["flows"].([]any)
	trimmed["flows"] = flows[:1]
	menus := trimmed["menus"].([]any)
	trimmed["menus"] = menus[:1]
	mainMenu := menus[0].(map[string]any)
	mainMenu["options"] = mainMenu["options"].([]any)[:3]

	require.Eventually(t, func() bool {
		source.Replace(trimmed)
		return eng.Flows().Generation() >= 2
	}, 2*time.Second, 20*time.Millisecond)

	replies, err := eng.HandleInboundEvent(ctx, user, domain.FreeText{Raw: "leo"})
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0].Body, catalog.DefaultMessages().FlowUnavailable))

	sess, err := eng.Session(ctx, user)
	require.NoError(t, err)
	assert.False(t, sess.InFlow())
}

func TestReload_RejectedKeepsGeneration(t *testing.T) {
	source := memory.NewSource(testutils.AstroDocs(t)...)
	eng, err := astrobot.New(context.Background(), "", astrobot.WithSource(source))
	require.NoError(t, err)

	source.Replace(map[string]any{"main_menu": "ghost"})
	_, err = eng.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(1), eng.Flows().Generation())
}
