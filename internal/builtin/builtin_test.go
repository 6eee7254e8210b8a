package builtin_test

import (
	"context"
	"testing"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/builtin"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatch(t *testing.T, id string, actx domain.ActionContext) domain.ActionResult {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	return reg.Dispatch(context.Background(), id, actx)
}

func TestRegister_Twice(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	assert.Error(t, builtin.Register(reg))
	assert.Equal(t, []string{"context.clear", "context.set", "reply"}, reg.Names())
}

func TestReply(t *testing.T) {
	res := dispatch(t, builtin.Reply, domain.ActionContext{
		Input:   "leo",
		Context: map[string]any{"name": "Ana"},
		Args:    map[string]any{"text": "{{name}}, you picked {{input}}."},
	})
	require.True(t, res.Success)
	require.Len(t, res.OutboundMessages, 1)
	assert.Equal(t, "Ana, you picked leo.", res.OutboundMessages[0].Body)

	res = dispatch(t, builtin.Reply, domain.ActionContext{})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, builtin.ErrMissingArg)
}

func TestSetContext(t *testing.T) {
	res := dispatch(t, builtin.ContextSet, domain.ActionContext{Args: map[string]any{"plan": "premium"}})
	require.True(t, res.Success)
	assert.Equal(t, map[string]any{"plan": "premium"}, res.ContextPatch)

	res = dispatch(t, builtin.ContextSet, domain.ActionContext{})
	assert.False(t, res.Success)
}

func TestClearContext(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want map[string]any
	}{
		{"all keys", nil, map[string]any{"name": nil, "sign": nil}},
		{"single key", map[string]any{"keys": "sign"}, map[string]any{"sign": nil}},
		{"key list", map[string]any{"keys": []any{"name"}}, map[string]any{"name": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := dispatch(t, builtin.ContextClear, domain.ActionContext{
				Context: map[string]any{"name": "Ana", "sign": "leo"},
				Args:    tt.args,
			})
			require.True(t, res.Success)
			assert.Equal(t, tt.want, res.ContextPatch)
		})
	}

	res := dispatch(t, builtin.ContextClear, domain.ActionContext{Args: map[string]any{"keys": 3}})
	assert.False(t, res.Success)
}
