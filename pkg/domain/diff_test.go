package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	base := &Session{
		UserID:      "u1",
		ContextData: map[string]any{"name": "Ana", "sign": "leo"},
	}

	t.Run("Initial Load", func(t *testing.T) {
		d := Diff(nil, base)
		require.NotNil(t, d)
		assert.Equal(t, "u1", d.UserID)
		assert.Equal(t, map[string]any{"name": "Ana", "sign": "leo"}, d.Context)
		require.NotNil(t, d.RetryCount)
	})

	t.Run("No Changes", func(t *testing.T) {
		assert.Nil(t, Diff(base, base.Clone()))
	})

	t.Run("Step Entered And Context Changed", func(t *testing.T) {
		next := base.Clone()
		next.EnterStep("onboarding", "ask_name")
		next.ContextData["name"] = "Bia"
		delete(next.ContextData, "sign")

		d := Diff(base, next)
		require.NotNil(t, d)
		assert.Equal(t, "onboarding", *d.FlowID)
		assert.Equal(t, "ask_name", *d.StepID)
		assert.Nil(t, d.MenuID)
		assert.Equal(t, map[string]any{"name": "Bia", "sign": nil}, d.Context)

		raw, err := json.Marshal(d)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"sign":null`)
	})
}

func TestSession_ApplyPatch(t *testing.T) {
	s := NewSession("u1", epoch())
	s.ApplyPatch(map[string]any{"a": 1, "b": "x"})
	s.ApplyPatch(map[string]any{"a": nil, "c": true})

	assert.Equal(t, map[string]any{"b": "x", "c": true}, s.ContextData)
}

func TestSession_CloneIsDeep(t *testing.T) {
	s := NewSession("u1", epoch())
	s.ContextData["birth"] = map[string]any{"date": "01/01/1990"}
	s.ContextData["tags"] = []any{"a"}

	c := s.Clone()
	c.ContextData["birth"].(map[string]any)["date"] = "changed"
	c.ContextData["tags"].([]any)[0] = "b"

	assert.Equal(t, "01/01/1990", s.ContextData["birth"].(map[string]any)["date"])
	assert.Equal(t, "a", s.ContextData["tags"].([]any)[0])
}

func TestSession_EnterStepResetsRetries(t *testing.T) {
	s := NewSession("u1", epoch())
	s.EnterStep("f", "a")
	s.RetryCount = 2

	s.EnterStep("f", "a")
	assert.Equal(t, 2, s.RetryCount, "same step keeps the counter")

	s.EnterStep("f", "b")
	assert.Equal(t, 0, s.RetryCount)

	s.ActiveMenuID = "more"
	s.ExitFlow()
	assert.False(t, s.InFlow())
	assert.Empty(t, s.ActiveMenuID)
}

func TestOutgoingMessage_WithNotice(t *testing.T) {
	m := Text("Pick one").WithNotice("Sorry, I didn't understand.")
	assert.Equal(t, "Sorry, I didn't understand.\n\nPick one", m.Body)
	assert.Equal(t, "only", Text("").WithNotice(" only ").Body)
	assert.Equal(t, "body", Text("body").WithNotice("").Body)
}

func epoch() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}
