package validator

import (
	"regexp"
	"testing"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestValidate_Text(t *testing.T) {
	rule := domain.TextRule{
		Pattern: `^\d{2}/\d{2}/\d{4}$`,
		Regexp:  regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`),
	}

	tests := []struct {
		name  string
		input string
		want  Outcome
	}{
		{"matches", "14/08/1990", Outcome{Valid: true, Value: "14/08/1990"}},
		{"trimmed before matching", "  14/08/1990 ", Outcome{Valid: true, Value: "14/08/1990"}},
		{"calendar-invalid date still matches the pattern", "31/02/1990", Outcome{Valid: true, Value: "31/02/1990"}},
		{"wrong shape", "1990-08-14", Outcome{Reason: ReasonPatternMismatch}},
		{"empty", "", Outcome{Reason: ReasonPatternMismatch}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(rule, domain.FreeText{Raw: tt.input}))
		})
	}

	t.Run("no pattern accepts anything", func(t *testing.T) {
		got := Validate(domain.TextRule{}, domain.FreeText{Raw: " anything "})
		assert.True(t, got.Valid)
		assert.Equal(t, "anything", got.Value)
	})
}

func TestValidate_Choice(t *testing.T) {
	rule := domain.ChoiceRule{Options: []domain.Choice{
		{ID: "yes", Label: "Yes, continue"},
		{ID: "no", Label: "No thanks"},
		{ID: "ÉTÉ", Label: "Summer"},
	}}

	accepted := []domain.IncomingEvent{
		domain.FreeText{Raw: "yes"},
		domain.FreeText{Raw: "  YES "},
		domain.FreeText{Raw: "yes, CONTINUE"},
		domain.FreeText{Raw: "Yes,   continue"},
		domain.MenuSelection{OptionID: "yes"},
	}
	for _, ev := range accepted {
		got := Validate(rule, ev)
		assert.True(t, got.Valid, "input %q", ev.RawInput())
		assert.Equal(t, "yes", got.Value, "id and label normalize to the same value")
	}

	assert.Equal(t, "ÉTÉ", Validate(rule, domain.FreeText{Raw: "été"}).Value)

	rejected := []domain.IncomingEvent{
		domain.FreeText{Raw: "maybe"},
		domain.FreeText{Raw: ""},
		domain.MenuSelection{OptionID: "YES"},
		domain.MenuSelection{OptionID: "Yes, continue"},
	}
	for _, ev := range rejected {
		assert.Equal(t, Outcome{Reason: ReasonUnknownChoice}, Validate(rule, ev), "input %q", ev.RawInput())
	}
}

func TestValidate_Range(t *testing.T) {
	rule := domain.RangeRule{Min: 1, Max: 12}

	assert.Equal(t, Outcome{Valid: true, Value: 1.0}, Validate(rule, domain.FreeText{Raw: "1"}))
	assert.Equal(t, Outcome{Valid: true, Value: 12.0}, Validate(rule, domain.FreeText{Raw: " 12 "}))
	assert.Equal(t, Outcome{Valid: true, Value: 6.5}, Validate(rule, domain.FreeText{Raw: "6.5"}))

	assert.Equal(t, ReasonOutOfRange, Validate(rule, domain.FreeText{Raw: "13"}).Reason)
	assert.Equal(t, ReasonOutOfRange, Validate(rule, domain.FreeText{Raw: "0.99"}).Reason)
	assert.Equal(t, ReasonNotANumber, Validate(rule, domain.FreeText{Raw: "twelve"}).Reason)
	assert.Equal(t, ReasonNotANumber, Validate(rule, domain.FreeText{Raw: "NaN"}).Reason)
	assert.Equal(t, ReasonNotANumber, Validate(rule, domain.FreeText{Raw: ""}).Reason)
}

func TestValidate_None(t *testing.T) {
	for _, rule := range []domain.InputRule{nil, domain.NoneRule{}} {
		got := Validate(rule, domain.FreeText{Raw: "  Hi There "})
		assert.Equal(t, Outcome{Valid: true, Value: "  Hi There "}, got, "raw input is returned unchanged")
	}
}

func TestMatchMenuOption_Position(t *testing.T) {
	options := []domain.Choice{{ID: "daily", Label: "Daily horoscope"}, {ID: "profile", Label: "Profile"}}

	c, ok := MatchMenuOption(options, domain.FreeText{Raw: "2"})
	assert.True(t, ok)
	assert.Equal(t, "profile", c.ID)

	_, ok = MatchMenuOption(options, domain.FreeText{Raw: "3"})
	assert.False(t, ok)

	_, ok = MatchMenuOption(options, domain.MenuSelection{OptionID: "1"})
	assert.False(t, ok, "structured replies never match by position")

	numbered := []domain.Choice{{ID: "2", Label: "Two"}, {ID: "1", Label: "One"}}
	c, ok = MatchMenuOption(numbered, domain.FreeText{Raw: "1"})
	assert.True(t, ok)
	assert.Equal(t, "1", c.ID, "an id match wins over a position match")
}
