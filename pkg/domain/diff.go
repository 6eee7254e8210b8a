package domain

import (
	"reflect"
)

// SessionDiff represents the changes between two sessions.
// It is designed to be serialized to JSON for operator tooling and audit logs.
type SessionDiff struct {
	// UserID is always present to identify the target.
	UserID string `json:"user_id"`

	FlowID *string `json:"active_flow_id,omitempty"`
	StepID *string `json:"active_step_id,omitempty"`
	MenuID *string `json:"active_menu_id,omitempty"`

	RetryCount *int `json:"retry_count,omitempty"`

	// Context contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Context map[string]any `json:"context,omitempty"`
}

// Diff calculates the difference between before and after.
// If before is nil, it returns a diff describing the whole of after.
// It returns nil when nothing changed.
func Diff(before, after *Session) *SessionDiff {
	if after == nil {
		return nil
	}

	diff := &SessionDiff{UserID: after.UserID}

	if before == nil || before.ActiveFlowID != after.ActiveFlowID {
		diff.FlowID = &after.ActiveFlowID
	}
	if before == nil || before.ActiveStepID != after.ActiveStepID {
		diff.StepID = &after.ActiveStepID
	}
	if before == nil || before.ActiveMenuID != after.ActiveMenuID {
		diff.MenuID = &after.ActiveMenuID
	}
	if before == nil || before.RetryCount != after.RetryCount {
		diff.RetryCount = &after.RetryCount
	}

	var old map[string]any
	if before != nil {
		old = before.ContextData
	}
	diff.Context = diffContext(old, after.ContextData)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffContext(old, next map[string]any) map[string]any {
	delta := make(map[string]any)

	for k, v := range next {
		prev, exists := old[k]
		if !exists || !reflect.DeepEqual(prev, v) {
			delta[k] = v
		}
	}
	for k := range old {
		if _, exists := next[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.FlowID == nil &&
		d.StepID == nil &&
		d.MenuID == nil &&
		d.RetryCount == nil &&
		len(d.Context) == 0
}
