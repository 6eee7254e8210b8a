package domain

// FlowDefinition is a named, directed graph of steps representing one
// multi-turn user task.
type FlowDefinition struct {
	ID          string                     `json:"id"`
	Title       string                     `json:"title,omitempty"`
	EntryStepID string                     `json:"entry_step_id"`
	Triggers    []string                   `json:"triggers,omitempty"`
	Steps       map[string]*StepDefinition `json:"steps"`
	// StepOrder preserves declaration order for rendering and diagnostics.
	StepOrder []string `json:"step_order"`
}

// Step returns the step with the given id.
func (f *FlowDefinition) Step(id string) (*StepDefinition, bool) {
	s, ok := f.Steps[id]
	return s, ok
}

// Entry returns the flow's entry step.
func (f *FlowDefinition) Entry() *StepDefinition {
	return f.Steps[f.EntryStepID]
}

// StepDefinition is one point in a flow: a prompt, an input rule and the
// targets taken on valid and invalid input.
type StepDefinition struct {
	ID     string    `json:"id"`
	Prompt string    `json:"prompt,omitempty"`
	Input  InputRule `json:"-"`

	// Next is the onValid target: a step id of the same flow or a terminal marker.
	Next string `json:"next"`
	// Branches are evaluated in order on valid input; the first match
	// overrides Next.
	Branches []Branch `json:"branches,omitempty"`
	// Actions run in declared order before transitioning on valid input.
	Actions []ActionRef `json:"actions,omitempty"`
	// SaveAs stores the normalized input into the session context.
	SaveAs string `json:"save_as,omitempty"`

	OnInvalid InvalidPolicy `json:"on_invalid"`
	// MaxRetries bounds consecutive invalid inputs. Nil means unbounded.
	MaxRetries *int `json:"max_retries,omitempty"`
	// Recovery is the target once MaxRetries is exceeded.
	Recovery string `json:"recovery"`
	// OnFailure is the target when an action of this step fails.
	OnFailure string `json:"on_failure"`
}

// Targets lists every transition target declared by the step, in a stable order.
func (s *StepDefinition) Targets() []string {
	out := []string{s.Next}
	for _, b := range s.Branches {
		out = append(out, b.Next)
	}
	if s.OnInvalid.Next != "" {
		out = append(out, s.OnInvalid.Next)
	}
	return append(out, s.Recovery, s.OnFailure)
}

// Branch is a conditional onValid target.
type Branch struct {
	When string `json:"when"`
	Next string `json:"next"`
}

// InvalidPolicy describes what happens on a single invalid input.
type InvalidPolicy struct {
	// Prompt is the error text sent before re-prompting.
	Prompt string `json:"prompt,omitempty"`
	// Next redirects to another step. Empty means retry the same step.
	Next string `json:"next,omitempty"`
}

// ActionRef references a registered action, with optional static arguments.
type ActionRef struct {
	ID   string         `json:"id"`
	Args map[string]any `json:"args,omitempty"`
}
