package domain

import "errors"

// ErrSessionNotFound is returned when a session cannot be found in the store,
// including sessions that expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionConflict is returned when an optimistic write lost a race against
// another writer for the same user.
var ErrSessionConflict = errors.New("session version conflict")

var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrStepNotFound = errors.New("step not found")
	ErrMenuNotFound = errors.New("menu not found")
)
