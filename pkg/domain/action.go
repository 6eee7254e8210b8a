package domain

// ErrorKind classifies a failed action.
type ErrorKind string

const (
	ErrUnknownAction ErrorKind = "unknown_action"
	ErrActionFailure ErrorKind = "action_failure"
	ErrActionTimeout ErrorKind = "action_timeout"
)

// ActionContext is the bounded view an action handler receives.
type ActionContext struct {
	UserID   string `json:"user_id"`
	FlowID   string `json:"flow_id,omitempty"`
	StepID   string `json:"step_id,omitempty"`
	ActionID string `json:"action_id"`
	// Input is the normalized value that triggered the step, or the option id
	// for menu actions.
	Input any `json:"input,omitempty"`
	// Context is a snapshot of the session context. Mutations are not persisted;
	// use ActionResult.ContextPatch.
	Context map[string]any `json:"context"`
	Args    map[string]any `json:"args,omitempty"`
}

// ActionResult is what a dispatch produced.
type ActionResult struct {
	Success          bool              `json:"success"`
	OutboundMessages []OutgoingMessage `json:"outbound_messages,omitempty"`
	// ContextPatch is merged into the session context. A nil value deletes the key.
	ContextPatch map[string]any `json:"context_patch,omitempty"`
	Error        ErrorKind      `json:"error,omitempty"`
	// Err carries the handler's own error detail for operators.
	Err error `json:"-"`
}

// Failed builds an unsuccessful result.
func Failed(kind ErrorKind, err error) ActionResult {
	return ActionResult{Error: kind, Err: err}
}
