package schema_test

import (
	"testing"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const onboardingYAML = `
main_menu: main
defaults:
  max_retries: 2
flows:
  - id: onboarding
    entry: ask_sign
    steps:
      - id: ask_sign
        prompt: Pick your sign
        input:
          type: choice
          options:
            - aries
            - {id: leo, label: Leo the Lion}
        actions:
          - profile.save
          - id: reply
            args: {text: "Saved"}
        next: END
menus:
  - id: main
    options:
      - {id: start, label: Start, flow: onboarding}
`

func TestParseAndDecode(t *testing.T) {
	raw, err := schema.Parse("flows.yaml", []byte(onboardingYAML))
	require.NoError(t, err)

	doc, err := schema.Decode(raw)
	require.NoError(t, err)

	require.Len(t, doc.Flows, 1)
	step := doc.Flows[0].Steps[0]

	assert.Equal(t, schema.InputChoice, step.Input.Type)
	assert.Equal(t, []schema.ChoiceSpec{
		{ID: "aries", Label: "aries"},
		{ID: "leo", Label: "Leo the Lion"},
	}, step.Input.Options)

	require.Len(t, step.Actions, 2)
	assert.Equal(t, "profile.save", step.Actions[0].ID)
	assert.Equal(t, "reply", step.Actions[1].ID)
	assert.Equal(t, "Saved", step.Actions[1].Args["text"])

	require.NotNil(t, doc.Defaults.MaxRetries)
	assert.Equal(t, 2, *doc.Defaults.MaxRetries)
	assert.Empty(t, doc.Validate())
}

func TestParse_JSON(t *testing.T) {
	raw, err := schema.Parse("flows.json", []byte(`{"main_menu":"main","flows":[{"id":"f","max_retries":1,"steps":[]}]}`))
	require.NoError(t, err)

	doc, err := schema.Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, doc.Flows[0].MaxRetries)
	assert.Equal(t, 1, *doc.Flows[0].MaxRetries)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := schema.Parse("flows.toml", []byte(""))
	assert.ErrorIs(t, err, schema.ErrUnsupportedFormat)
	assert.False(t, schema.IsDocumentFile("flows.toml"))
	assert.True(t, schema.IsDocumentFile("FLOWS.YML"))
}

func TestDecode_UnknownKeyIsSchemaError(t *testing.T) {
	raw := map[string]any{
		"flows": []any{
			map[string]any{"id": "f", "entyr": "typo"},
		},
	}

	_, err := schema.Decode(raw)
	require.Error(t, err)

	var se *schema.SchemaError
	require.ErrorAs(t, err, &se)
	assert.NotEmpty(t, schema.Issues(err))
	assert.Contains(t, err.Error(), "entyr")
}

func TestDocument_Validate(t *testing.T) {
	lo, hi := 10.0, 1.0
	neg := -1
	doc := &schema.Document{
		Flows: []schema.FlowSpec{{
			ID: "f",
			Steps: []schema.StepSpec{
				{ID: "a", Input: schema.InputSpec{Type: schema.InputChoice}},
				{ID: "b", Next: "END", Input: schema.InputSpec{Type: schema.InputText, Pattern: "(["}},
				{ID: "c", Next: "END", Input: schema.InputSpec{Type: schema.InputRange, Min: &lo, Max: &hi}},
				{ID: "d", Next: "END", MaxRetries: &neg, Input: schema.InputSpec{Type: "date"}},
			},
		}},
		Menus: []schema.MenuSpec{{
			ID: "main",
			Options: []schema.OptionSpec{
				{ID: "x", Label: "X", Action: "a", Flow: "f"},
				{ID: "y", Label: "Y"},
			},
		}},
	}

	issues := doc.Validate()
	paths := make([]string, 0, len(issues))
	for _, i := range issues {
		paths = append(paths, i.Path)
	}

	assert.Contains(t, paths, "flows[f].steps[a].next")
	assert.Contains(t, paths, "flows[f].steps[a].input.options")
	assert.Contains(t, paths, "flows[f].steps[b].input.pattern")
	assert.Contains(t, paths, "flows[f].steps[c].input")
	assert.Contains(t, paths, "flows[f].steps[d].max_retries")
	assert.Contains(t, paths, "flows[f].steps[d].input.type")
	assert.Contains(t, paths, "menus[main].options[x]")
	assert.Contains(t, paths, "menus[main].options[y]")
}

func TestSchemaError_Message(t *testing.T) {
	var c schema.Collector
	assert.NoError(t, c.Err())

	c.Addf("flows[f]", "duplicate flow id %q", "f")
	assert.EqualError(t, c.Err(), `invalid flow configuration: flows[f]: duplicate flow id "f"`)

	c.Addf("", "main menu %q not found", "main")
	assert.Contains(t, c.Err().Error(), "2 issues")
}
