package runtime

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// Interpolator substitutes context values into a prompt.
type Interpolator func(ctx context.Context, text string, data map[string]any) (string, error)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// DefaultInterpolator replaces {{key}} and {{key.nested}} with values from
// data. Missing keys render as the empty string.
func DefaultInterpolator(_ context.Context, text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		path := placeholder.FindStringSubmatch(m)[1]
		v, ok := lookup(data, strings.Split(path, "."))
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}), nil
}

func lookup(data map[string]any, path []string) (any, bool) {
	var cur any = data
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// RenderError reports a prompt that could not be interpolated.
type RenderError struct {
	Target string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render %s: %v", e.Target, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// renderText interpolates text. On failure the raw text is kept so the user
// still gets a prompt.
func (e *Engine) renderText(ctx context.Context, target, text string, sess *domain.Session) string {
	out, err := e.interpolator(ctx, text, sess.ContextData)
	if err != nil {
		e.logger.Warn("Prompt interpolation failed", "user_id", sess.UserID, "err", &RenderError{Target: target, Err: err})
		return text
	}
	return out
}

// renderStep builds the prompt of a step. Choice inputs carry their options.
func (e *Engine) renderStep(ctx context.Context, flowID string, step *domain.StepDefinition, sess *domain.Session) domain.OutgoingMessage {
	msg := domain.Text(e.renderText(ctx, flowID+"/"+step.ID, step.Prompt, sess))
	if rule, ok := step.Input.(domain.ChoiceRule); ok {
		msg.Kind = domain.MessageChoice
		for _, c := range rule.Options {
			msg.Options = append(msg.Options, domain.OptionView{ID: c.ID, Label: c.Label})
		}
	}
	return msg
}

// renderMenu builds the prompt of a menu with its options.
func (e *Engine) renderMenu(ctx context.Context, menu *domain.MenuDefinition, sess *domain.Session) domain.OutgoingMessage {
	msg := domain.OutgoingMessage{
		Kind: domain.MessageChoice,
		Body: e.renderText(ctx, "menu "+menu.ID, menu.Prompt, sess),
	}
	for _, o := range menu.Options {
		msg.Options = append(msg.Options, domain.OptionView{ID: o.ID, Label: o.Label})
	}
	return msg
}
