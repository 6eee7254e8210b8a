package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/builtin"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/config"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/file"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/registry"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/schema"
)

// ErrInvalidFlows is returned by ValidateFlows when the definitions are
// rejected.
var ErrInvalidFlows = errors.New("flow definitions are invalid")

// ValidateFlows loads and compiles the definitions under path and prints every
// issue, followed by lint warnings and actions neither a built-in nor a
// process action of actions.Processes handles. In strict mode unknown actions
// fail validation.
func ValidateFlows(ctx context.Context, path string, actions config.ActionsConfig, w io.Writer) (*catalog.FlowSet, error) {
	docs, err := file.NewSource(path).Load(ctx)
	if err != nil {
		return nil, err
	}

	set, err := catalog.Compile(docs...)
	if issues := schema.Issues(err); len(issues) > 0 {
		fmt.Fprintf(w, "Found %d issue(s):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(w, "  ✗ %s\n", issue)
		}
		return nil, ErrInvalidFlows
	}
	if err != nil {
		return nil, err
	}

	for _, warning := range catalog.Lint(set) {
		fmt.Fprintf(w, "  ! %s\n", warning)
	}

	reg := registry.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		return nil, err
	}
	if err := registerProcesses(reg, actions, logging.NewNop()); err != nil {
		return nil, err
	}
	missing := set.UnknownActions(reg.Has)
	if len(missing) > 0 {
		fmt.Fprintf(w, "  ! actions without a handler: %s\n", strings.Join(missing, ", "))
		if actions.Strict {
			return nil, fmt.Errorf("%w: unregistered actions %s", ErrInvalidFlows, strings.Join(missing, ", "))
		}
	}

	fmt.Fprintf(w, "%d flow(s) and %d menu(s) are valid.\n", len(set.Flows()), len(set.Menus()))
	return set, nil
}
