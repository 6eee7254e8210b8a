package domain

import "regexp"

// RuleKind names an input rule variant.
type RuleKind string

const (
	RuleText   RuleKind = "text"
	RuleChoice RuleKind = "choice"
	RuleRange  RuleKind = "range"
	RuleNone   RuleKind = "none"
)

// InputRule constrains what a step accepts. The set of implementations is
// closed: TextRule, ChoiceRule, RangeRule and NoneRule.
type InputRule interface {
	Kind() RuleKind
	inputRule()
}

// TextRule accepts free text, optionally constrained by a pattern.
type TextRule struct {
	Pattern string         `json:"pattern,omitempty"`
	Regexp  *regexp.Regexp `json:"-"`
}

// ChoiceRule accepts one of an enumerated set of options.
type ChoiceRule struct {
	Options []Choice `json:"options"`
}

// RangeRule accepts a number within [Min, Max].
type RangeRule struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// NoneRule marks an informational step; any input is accepted.
type NoneRule struct{}

// Choice is one selectable option of a ChoiceRule.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (TextRule) Kind() RuleKind   { return RuleText }
func (ChoiceRule) Kind() RuleKind { return RuleChoice }
func (RangeRule) Kind() RuleKind  { return RuleRange }
func (NoneRule) Kind() RuleKind   { return RuleNone }

func (TextRule) inputRule()   {}
func (ChoiceRule) inputRule() {}
func (RangeRule) inputRule()  {}
func (NoneRule) inputRule()   {}
