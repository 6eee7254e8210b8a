package middleware

import (
	"fmt"
	"regexp"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// Mask replaces redacted values.
const Mask = "***"

// Redactor masks context values whose key matches one of its patterns.
// It is applied to sessions shown to operators (CLI, MCP, API), never to
// what the engine stores.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles the key patterns.
func NewRedactor(patterns []string) (*Redactor, error) {
	r := &Redactor{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Session returns a copy of sess with matching values masked.
// A nil Redactor returns a plain copy.
func (r *Redactor) Session(sess *domain.Session) *domain.Session {
	out := sess.Clone()
	if r == nil || out == nil {
		return out
	}
	r.mask(out.ContextData)
	return out
}

func (r *Redactor) mask(m map[string]any) {
	for k, v := range m {
		if r.matches(k) {
			m[k] = Mask
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			r.mask(sub)
		}
	}
}

func (r *Redactor) matches(key string) bool {
	for _, p := range r.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
