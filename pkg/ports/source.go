package ports

import "context"

// ConfigSource yields the raw structured documents holding flow and menu
// definitions. Each document is the decoded form of one file, row or remote
// payload; the catalog merges and validates them.
type ConfigSource interface {
	Load(ctx context.Context) ([]map[string]any, error)
}

// Watchable defines an interface for sources that can notify about backend changes.
// This is typically used for hot-reload.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying documents change.
	// It abstracts away the specific event details, signaling only that a reload is required.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
