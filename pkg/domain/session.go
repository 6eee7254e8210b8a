package domain

import "time"

// Session is the per-user position in the state machine plus the context
// accumulated across steps.
//
// A session with an empty ActiveFlowID is in main-menu mode (NoActiveFlow);
// otherwise it is InFlow(ActiveFlowID, ActiveStepID).
type Session struct {
	UserID       string `json:"user_id"`
	ActiveFlowID string `json:"active_flow_id,omitempty"`
	ActiveStepID string `json:"active_step_id,omitempty"`
	// ActiveMenuID is the menu interpreted in NoActiveFlow mode. Empty means the main menu.
	ActiveMenuID   string         `json:"active_menu_id,omitempty"`
	RetryCount     int            `json:"retry_count"`
	ContextData    map[string]any `json:"context_data"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	// Version is owned by the store. Zero means the session was never stored.
	Version int64 `json:"version"`
}

// NewSession returns a fresh NoActiveFlow session.
func NewSession(userID string, now time.Time) *Session {
	return &Session{
		UserID:         userID,
		ContextData:    make(map[string]any),
		LastActivityAt: now,
	}
}

// InFlow reports whether the session is positioned on a flow step.
func (s *Session) InFlow() bool {
	return s.ActiveFlowID != ""
}

// EnterStep positions the session on a step, resetting the retry counter
// when the step changes.
func (s *Session) EnterStep(flowID, stepID string) {
	if s.ActiveFlowID != flowID || s.ActiveStepID != stepID {
		s.RetryCount = 0
	}
	s.ActiveFlowID = flowID
	s.ActiveStepID = stepID
	s.ActiveMenuID = ""
}

// ExitFlow returns the session to main-menu mode.
func (s *Session) ExitFlow() {
	s.ActiveFlowID = ""
	s.ActiveStepID = ""
	s.ActiveMenuID = ""
	s.RetryCount = 0
}

// ApplyPatch merges patch into ContextData. A nil value deletes the key.
func (s *Session) ApplyPatch(patch map[string]any) {
	if len(patch) == 0 {
		return
	}
	if s.ContextData == nil {
		s.ContextData = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(s.ContextData, k)
			continue
		}
		s.ContextData[k] = v
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.ContextData = CopyContext(s.ContextData)
	return &out
}

// CopyContext deep-copies nested maps and slices of a context map.
func CopyContext(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CopyContext(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
