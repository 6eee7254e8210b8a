// Package builtin provides generic actions every deployment can reference
// from flow definitions without writing Go.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/runtime"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/registry"
)

// Action ids.
const (
	Reply        = "reply"
	ContextSet   = "context.set"
	ContextClear = "context.clear"
)

// ErrMissingArg is returned when a required argument is absent.
var ErrMissingArg = errors.New("missing required argument")

// Register adds the built-in actions to reg.
func Register(reg *registry.Registry) error {
	for id, h := range map[string]registry.Handler{
		Reply:        ReplyHandler(runtime.DefaultInterpolator),
		ContextSet:   SetContext,
		ContextClear: ClearContext,
	} {
		if err := reg.Register(id, h); err != nil {
			return err
		}
	}
	return nil
}

// ReplyHandler sends args.text, interpolated against the session context.
// {{input}} is the value that triggered the step.
func ReplyHandler(interp runtime.Interpolator) registry.Handler {
	return func(ctx context.Context, actx domain.ActionContext) (domain.ActionResult, error) {
		text, _ := actx.Args["text"].(string)
		if text == "" {
			return domain.ActionResult{}, fmt.Errorf("%w: text", ErrMissingArg)
		}

		data := domain.CopyContext(actx.Context)
		if _, ok := data["input"]; !ok && actx.Input != nil {
			data["input"] = actx.Input
		}
		body, err := interp(ctx, text, data)
		if err != nil {
			return domain.ActionResult{}, err
		}
		return domain.ActionResult{OutboundMessages: []domain.OutgoingMessage{domain.Text(body)}}, nil
	}
}

// SetContext writes every argument into the session context.
func SetContext(_ context.Context, actx domain.ActionContext) (domain.ActionResult, error) {
	if len(actx.Args) == 0 {
		return domain.ActionResult{}, fmt.Errorf("%w: at least one key", ErrMissingArg)
	}
	return domain.ActionResult{ContextPatch: domain.CopyContext(actx.Args)}, nil
}

// ClearContext removes args.keys from the session context, or every key
// when none is given.
func ClearContext(_ context.Context, actx domain.ActionContext) (domain.ActionResult, error) {
	var keys []string
	switch v := actx.Args["keys"].(type) {
	case nil:
		for k := range actx.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	case string:
		keys = []string{v}
	case []string:
		keys = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return domain.ActionResult{}, fmt.Errorf("keys must be strings, got %T", item)
			}
			keys = append(keys, s)
		}
	default:
		return domain.ActionResult{}, fmt.Errorf("keys must be a string or a list, got %T", v)
	}

	patch := make(map[string]any, len(keys))
	for _, k := range keys {
		patch[k] = nil
	}
	return domain.ActionResult{ContextPatch: patch}, nil
}
