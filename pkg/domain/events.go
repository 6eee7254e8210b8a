package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventInbound        EventType = "inbound"
	EventStepEnter      EventType = "step_enter"
	EventInvalidInput   EventType = "invalid_input"
	EventActionDispatch EventType = "action_dispatch"
	EventActionReturn   EventType = "action_return"
	EventConflict       EventType = "session_conflict"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
}

// InboundEvent is emitted once per processed inbound event.
type InboundEvent struct {
	EventBase
	// Mode is "menu" or "flow", the state the event was interpreted in.
	Mode string `json:"mode"`
}

// StepEvent represents entry into a step or menu.
type StepEvent struct {
	EventBase
	FlowID string `json:"flow_id,omitempty"`
	StepID string `json:"step_id,omitempty"`
	MenuID string `json:"menu_id,omitempty"`
}

// ValidationEvent represents a rejected input.
type ValidationEvent struct {
	EventBase
	FlowID    string `json:"flow_id"`
	StepID    string `json:"step_id"`
	Reason    string `json:"reason"`
	Exhausted bool   `json:"exhausted,omitempty"`
}

// ActionEvent represents an action dispatch.
type ActionEvent struct {
	EventBase
	ActionID string        `json:"action_id"`
	Success  bool          `json:"success,omitempty"`
	Error    ErrorKind     `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnInbound        func(context.Context, *InboundEvent)
	OnStepEnter      func(context.Context, *StepEvent)
	OnInvalidInput   func(context.Context, *ValidationEvent)
	OnActionDispatch func(context.Context, *ActionEvent)
	OnActionReturn   func(context.Context, *ActionEvent)
	OnConflict       func(context.Context, *EventBase)
}
