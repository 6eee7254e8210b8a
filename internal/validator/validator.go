// Package validator evaluates a step's input rule against raw user input.
// It is a pure function of (rule, input) and has no side effects.
package validator

import (
	"math"
	"strconv"
	"strings"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Reason explains why an input was rejected.
type Reason string

const (
	ReasonPatternMismatch Reason = "pattern_mismatch"
	ReasonUnknownChoice   Reason = "unknown_choice"
	ReasonNotANumber      Reason = "not_a_number"
	ReasonOutOfRange      Reason = "out_of_range"
	ReasonUnsupportedRule Reason = "unsupported_rule"
)

// Outcome is either a valid result carrying the normalized value, or an
// invalid result carrying a reason.
type Outcome struct {
	Valid  bool
	Value  any
	Reason Reason
}

func valid(v any) Outcome { return Outcome{Valid: true, Value: v} }
func invalid(r Reason) Outcome { return Outcome{Reason: r} }

// Validate checks ev against rule. A nil rule behaves like domain.NoneRule.
func Validate(rule domain.InputRule, ev domain.IncomingEvent) Outcome {
	raw := ev.RawInput()

	switch r := rule.(type) {
	case nil, domain.NoneRule:
		return valid(raw)
	case domain.TextRule:
		text := strings.TrimSpace(raw)
		if r.Regexp != nil && !r.Regexp.MatchString(text) {
			return invalid(ReasonPatternMismatch)
		}
		return valid(text)
	case domain.ChoiceRule:
		c, ok := MatchChoice(r.Options, ev)
		if !ok {
			return invalid(ReasonUnknownChoice)
		}
		return valid(c.ID)
	case domain.RangeRule:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return invalid(ReasonNotANumber)
		}
		if n < r.Min || n > r.Max {
			return invalid(ReasonOutOfRange)
		}
		return valid(n)
	default:
		return invalid(ReasonUnsupportedRule)
	}
}

// MatchChoice finds the option selected by ev.
//
// A MenuSelection carries an explicit option id and is matched exactly.
// Free text is compared, case-insensitively and ignoring surrounding and
// repeated whitespace, first against option ids and then against labels.
func MatchChoice(options []domain.Choice, ev domain.IncomingEvent) (domain.Choice, bool) {
	if sel, ok := ev.(domain.MenuSelection); ok {
		for _, o := range options {
			if o.ID == sel.OptionID {
				return o, true
			}
		}
		return domain.Choice{}, false
	}

	key := Fold(ev.RawInput())
	if key == "" {
		return domain.Choice{}, false
	}
	for _, o := range options {
		if Fold(o.ID) == key {
			return o, true
		}
	}
	for _, o := range options {
		if Fold(o.Label) == key {
			return o, true
		}
	}
	return domain.Choice{}, false
}

// MatchMenuOption is MatchChoice plus the 1-based position of the option,
// which text-only transports render as a numbered list.
func MatchMenuOption(options []domain.Choice, ev domain.IncomingEvent) (domain.Choice, bool) {
	if c, ok := MatchChoice(options, ev); ok {
		return c, true
	}
	if _, ok := ev.(domain.FreeText); !ok {
		return domain.Choice{}, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(ev.RawInput()))
	if err != nil || n < 1 || n > len(options) {
		return domain.Choice{}, false
	}
	return options[n-1], true
}

// Fold normalizes s for case-insensitive comparison: NFC composition, Unicode
// case folding and whitespace collapsing.
func Fold(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(norm.NFC.String(s))
}
