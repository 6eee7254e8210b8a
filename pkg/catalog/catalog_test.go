package catalog_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/testutils"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/memory"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_AstroFixture(t *testing.T) {
	set, err := catalog.Compile(testutils.AstroDocs(t)...)
	require.NoError(t, err)

	assert.Equal(t, "main", set.MainMenuID())
	assert.Len(t, set.Flows(), 2)
	assert.Len(t, set.Menus(), 2)

	step, err := set.Step("onboarding", "ask_birth_date")
	require.NoError(t, err)
	require.NotNil(t, step.MaxRetries)
	assert.Equal(t, 2, *step.MaxRetries, "document default applies")
	assert.Equal(t, domain.TargetMainMenu, step.Recovery)
	assert.Equal(t, domain.TargetMainMenu, step.OnFailure)
	assert.Equal(t, domain.RuleText, step.Input.Kind())

	sign, err := set.Step("compatibility", "ask_partner_sign")
	require.NoError(t, err)
	rule := sign.Input.(domain.ChoiceRule)
	assert.Equal(t, domain.Choice{ID: "aries", Label: "aries"}, rule.Options[0])

	f, ok := set.MatchTrigger("  START ")
	require.True(t, ok)
	assert.Equal(t, "onboarding", f.ID)
	_, ok = set.MatchTrigger("hi")
	assert.False(t, ok)

	assert.True(t, set.IsResetKeyword("Menu"))
	assert.False(t, set.IsResetKeyword("menus"))

	assert.Equal(t, []string{"compatibility.check", "horoscope.daily", "profile.save", "reading.welcome", "tarot.draw"}, set.ActionIDs())
	registered := map[string]bool{"profile.save": true, "horoscope.daily": true}
	assert.Equal(t, []string{"compatibility.check", "reading.welcome", "tarot.draw"},
		set.UnknownActions(func(id string) bool { return registered[id] }))

	assert.Equal(t, "Sorry, I didn't understand that.", set.Messages().NotUnderstood)
	assert.Equal(t, catalog.DefaultMessages().TooManyAttempts, set.Messages().TooManyAttempts)

	_, err = set.Flow("ghost")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	_, err = set.Menu("ghost")
	assert.ErrorIs(t, err, domain.ErrMenuNotFound)
	_, err = set.Step("onboarding", "ghost")
	assert.ErrorIs(t, err, domain.ErrStepNotFound)
}

func mainMenu(flowID string) map[string]any {
	return map[string]any{
		"id":      "main",
		"options": []any{map[string]any{"id": "go", "label": "Go", "flow": flowID}},
	}
}

func step(id, next string, extra ...any) map[string]any {
	s := map[string]any{"id": id, "next": next}
	for i := 0; i+1 < len(extra); i += 2 {
		s[extra[i].(string)] = extra[i+1]
	}
	return s
}

func TestCompile_SchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      map[string]any
		wantPath string
	}{
		{
			name: "duplicate flow id",
			doc: map[string]any{
				"flows": []any{
					map[string]any{"id": "f", "steps": []any{step("a", "END")}},
					map[string]any{"id": "f", "steps": []any{step("a", "END")}},
				},
				"menus": []any{mainMenu("f")},
			},
			wantPath: "flows[f]",
		},
		{
			name: "duplicate step id",
			doc: map[string]any{
				"flows": []any{map[string]any{"id": "f", "steps": []any{step("a", "END"), step("a", "END")}}},
				"menus": []any{mainMenu("f")},
			},
			wantPath: "flows[f].steps[a]",
		},
		{
			name: "dangling next",
			doc: map[string]any{
				"flows": []any{map[string]any{"id": "f", "steps": []any{step("a", "ghost")}}},
				"menus": []any{mainMenu("f")},
			},
			wantPath: "flows[f].steps[a].next",
		},
		{
			name: "dangling on_invalid",
			doc: map[string]any{
				"flows": []any{map[string]any{"id": "f", "steps": []any{
					step("a", "END", "on_invalid", map[string]any{"next": "ghost"}),
				}}},
				"menus": []any{mainMenu("f")},
			},
			wantPath: "flows[f].steps[a].on_invalid.next",
		},
		{
			name: "choice without options",
			doc: map[string]any{
				"flows": []any{map[string]any{"id": "f", "steps": []any{
					step("a", "END", "input", map[string]any{"type": "choice", "options": []any{}}),
				}}},
				"menus": []any{mainMenu("f")},
			},
			wantPath: "flows[f].steps[a].input.options",
		},
		{
			name: "missing entry step",
			doc: map[string]any{
				"flows": []any{map[string]any{"id": "f", "entry": "ghost", "steps": []any{step("a", "END")}}},
				"menus": []any{mainMenu("f")},
			},
			wantPath: "flows[f].entry",
		},
		{
			name: "missing main menu",
			doc: map[string]any{
				"main_menu": "home",
				"flows":     []any{map[string]any{"id": "f", "steps": []any{step("a", "END")}}},
				"menus":     []any{mainMenu("f")},
			},
			wantPath: "main_menu",
		},
		{
			name: "option to unknown flow",
			doc: map[string]any{
				"flows": []any{map[string]any{"id": "f", "steps": []any{step("a", "END")}}},
				"menus": []any{mainMenu("ghost")},
			},
			wantPath: "menus[main].options[go].flow",
		},
		{
			name: "invalid branch condition",
			doc: map[string]any{
				"flows": []any{map[string]any{"id": "f", "steps": []any{
					step("a", "END", "branches", []any{map[string]any{"when": "input ==", "next": "a"}}),
				}}},
				"menus": []any{mainMenu("f")},
			},
			wantPath: "flows[f].steps[a].branches[0].when",
		},
		{
			name: "trigger claimed twice",
			doc: map[string]any{
				"flows": []any{
					map[string]any{"id": "f", "triggers": []any{"start"}, "steps": []any{step("a", "END")}},
					map[string]any{"id": "g", "triggers": []any{"START"}, "steps": []any{step("a", "END")}},
				},
				"menus": []any{mainMenu("f")},
			},
			wantPath: "flows[g].triggers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Compile(tt.doc)
			require.Error(t, err)

			var se *schema.SchemaError
			require.ErrorAs(t, err, &se)

			paths := make([]string, 0, len(se.Issues))
			for _, issue := range se.Issues {
				paths = append(paths, issue.Path)
			}
			assert.Contains(t, paths, tt.wantPath)
		})
	}
}

func TestCompile_MergesDocuments(t *testing.T) {
	flows := map[string]any{
		"flows": []any{map[string]any{"id": "f", "steps": []any{step("a", "END")}}},
	}
	menus := map[string]any{
		"main_menu": "main",
		"menus":     []any{mainMenu("f")},
	}

	set, err := catalog.Compile(flows, menus)
	require.NoError(t, err)
	assert.Equal(t, "a", set.Flows()[0].EntryStepID, "entry defaults to the first step")

	_, err = catalog.Compile(flows, menus, map[string]any{"main_menu": "other"})
	assert.Error(t, err)
}

func TestLint(t *testing.T) {
	set, err := catalog.Compile(map[string]any{
		"flows": []any{map[string]any{"id": "f", "steps": []any{
			step("a", "END"),
			step("orphan", "a"),
		}}},
		"menus": []any{
			mainMenu("f"),
			map[string]any{"id": "lonely", "options": []any{map[string]any{"id": "x", "label": "X", "action": "noop"}}},
		},
	})
	require.NoError(t, err)

	warnings := catalog.Lint(set)
	assert.Contains(t, warnings, `flows[f].steps[orphan]: unreachable from entry step "a"`)
	assert.Contains(t, warnings, "menus[lonely]: no option leads to this menu")
}

// randomFlow builds a flow graph whose targets point at its own steps or at
// terminal markers. When broken is set, one target points at a missing step.
func randomFlow(r *rand.Rand, broken bool) map[string]any {
	n := 1 + r.Intn(8)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("s%d", i)
	}
	targets := append(append([]string{}, ids...), domain.TargetEnd, domain.TargetMainMenu)
	pick := func() string { return targets[r.Intn(len(targets))] }

	steps := make([]any, n)
	for i, id := range ids {
		s := step(id, pick())
		if r.Intn(2) == 0 {
			s["on_invalid"] = map[string]any{"next": pick()}
		}
		steps[i] = s
	}

	if broken {
		victim := steps[r.Intn(n)].(map[string]any)
		if r.Intn(2) == 0 {
			victim["next"] = "ghost"
		} else {
			victim["on_invalid"] = map[string]any{"next": "ghost"}
		}
	}

	return map[string]any{
		"flows": []any{map[string]any{"id": "f", "steps": steps}},
		"menus": []any{mainMenu("f")},
	}
}

func TestCompile_PropertyNoDanglingTargets(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 300; i++ {
		broken := r.Intn(3) == 0
		set, err := catalog.Compile(randomFlow(r, broken))

		if broken {
			assert.Error(t, err, "iteration %d: ill-formed graph must be rejected", i)
			continue
		}
		require.NoError(t, err, "iteration %d: well-formed graph must be accepted", i)

		f, err := set.Flow("f")
		require.NoError(t, err)
		for id := range catalog.Reachable(f) {
			s, _ := f.Step(id)
			for _, target := range s.Targets() {
				_, isStep := f.Step(target)
				assert.True(t, isStep || domain.IsTerminal(target),
					"iteration %d: step %s has dangling target %q", i, id, target)
			}
		}
	}
}

func TestCatalog_LoadKeepsPreviousGenerationOnError(t *testing.T) {
	source := memory.NewSource(testutils.AstroDocs(t)...)
	c := catalog.New(source)
	ctx := context.Background()

	assert.Nil(t, c.Snapshot())
	_, err := c.GetFlow("onboarding")
	assert.ErrorIs(t, err, catalog.ErrNotLoaded)

	first, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Generation())

	source.Replace(map[string]any{"flows": []any{map[string]any{"id": "broken"}}})
	_, err = c.Load(ctx)
	require.Error(t, err)
	assert.NotEmpty(t, schema.Issues(err))
	assert.Same(t, first, c.Snapshot(), "a rejected reload keeps the active generation")

	source.Replace(testutils.AstroDocs(t)...)
	second, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Generation())

	f, err := c.GetFlow("onboarding")
	require.NoError(t, err)
	assert.Equal(t, "ask_name", f.EntryStepID)
	m, err := c.GetMenu("more")
	require.NoError(t, err)
	assert.Len(t, m.Options, 2)
}

func TestCatalog_Watch(t *testing.T) {
	source := memory.NewSource(testutils.AstroDocs(t)...)
	reloads := make(chan uint64, 1)
	c := catalog.New(source, catalog.WithReloadHook(func(s *catalog.FlowSet) {
		select {
		case reloads <- s.Generation():
		default:
		}
	}))

	_, err := c.Load(context.Background())
	require.NoError(t, err)
	<-reloads

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Watch(ctx) }()

	// Replace until the watcher has subscribed and picked a change up.
	require.Eventually(t, func() bool {
		source.Replace(testutils.AstroDocs(t)...)
		select {
		case gen := <-reloads:
			return gen >= 2
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCatalog_ReadersSeeCompleteGenerations(t *testing.T) {
	variant := func(flowID string) map[string]any {
		return map[string]any{
			"flows": []any{map[string]any{"id": flowID, "steps": []any{step("a", "END")}}},
			"menus": []any{mainMenu(flowID)},
		}
	}
	source := memory.NewSource(variant("x"))
	c := catalog.New(source)
	_, err := c.Load(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				set := c.Snapshot()
				target := set.MainMenu().Options[0].FlowID
				if _, err := set.Flow(target); err != nil {
					t.Errorf("generation %d is inconsistent: %v", set.Generation(), err)
					return
				}
			}
		}()
	}

	for i := 0; ctx.Err() == nil; i++ {
		source.Replace(variant(fmt.Sprintf("f%d", i%2)))
		_, err := c.Load(context.Background())
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestCatalog_WatchRequiresWatchableSource(t *testing.T) {
	c := catalog.New(staticSource{})
	assert.ErrorIs(t, c.Watch(context.Background()), catalog.ErrNotWatchable)
}

type staticSource struct{}

func (staticSource) Load(context.Context) ([]map[string]any, error) { return nil, nil }

func TestFlowSet_Summary(t *testing.T) {
	set, err := catalog.Compile(testutils.AstroDocs(t)...)
	require.NoError(t, err)

	sum := set.Summary()
	assert.Equal(t, "main", sum.MainMenu)
	require.Len(t, sum.Flows, 2)
	assert.Equal(t, catalog.FlowSummary{
		ID:       "onboarding",
		Title:    "Profile setup",
		Entry:    "ask_name",
		Triggers: []string{"start", "register"},
		Steps:    []string{"ask_name", "ask_birth_date", "ask_birth_hour", "confirm", "ask_reading"},
	}, sum.Flows[0])
	assert.Equal(t, "compatibility", sum.Flows[1].ID)
	require.Len(t, sum.Menus, 2)
	assert.Equal(t, "main", sum.Menus[0].ID)
}
