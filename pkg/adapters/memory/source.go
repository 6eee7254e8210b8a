package memory

import (
	"context"
	"sync"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// Source implements ports.ConfigSource and ports.Watchable over documents held
// in memory. Replace swaps the documents and signals watchers, which makes it
// the natural source for tests and for embedding flows in code.
type Source struct {
	mu       sync.RWMutex
	docs     []map[string]any
	watchers []chan struct{}
}

// NewSource creates a source serving the given documents.
func NewSource(docs ...map[string]any) *Source {
	return &Source{docs: docs}
}

// Load returns deep copies of the current documents.
func (s *Source) Load(ctx context.Context) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]map[string]any, len(s.docs))
	for i, d := range s.docs {
		out[i] = domain.CopyContext(d)
	}
	return out, nil
}

// Replace swaps the served documents and notifies watchers.
func (s *Source) Replace(docs ...map[string]any) {
	s.mu.Lock()
	s.docs = docs
	watchers := append([]chan struct{}(nil), s.watchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		select {
		case w <- struct{}{}:
		default:
			// A reload is already pending.
		}
	}
}

// Watch returns a channel signaled after every Replace until ctx is done.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
	}()
	return ch, nil
}
