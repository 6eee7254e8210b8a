package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// ActionSpy records action invocations so tests can assert dispatch counts
// and order.
type ActionSpy struct {
	mu    sync.Mutex
	calls []domain.ActionContext
}

// Handler returns a handler that records its invocation and returns res.
func (s *ActionSpy) Handler(res domain.ActionResult) func(context.Context, domain.ActionContext) (domain.ActionResult, error) {
	return func(_ context.Context, actx domain.ActionContext) (domain.ActionResult, error) {
		s.record(actx)
		return res, nil
	}
}

// Failing returns a handler that records its invocation and fails.
func (s *ActionSpy) Failing(msg string) func(context.Context, domain.ActionContext) (domain.ActionResult, error) {
	return func(_ context.Context, actx domain.ActionContext) (domain.ActionResult, error) {
		s.record(actx)
		return domain.ActionResult{}, errors.New(msg)
	}
}

func (s *ActionSpy) record(actx domain.ActionContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, actx)
}

// Count returns how many times id was dispatched.
func (s *ActionSpy) Count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.ActionID == id {
			n++
		}
	}
	return n
}

// Order returns the dispatched action ids in invocation order.
func (s *ActionSpy) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.ActionID
	}
	return out
}

// Last returns the most recent invocation of id.
func (s *ActionSpy) Last(id string) (domain.ActionContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].ActionID == id {
			return s.calls[i], true
		}
	}
	return domain.ActionContext{}, false
}
