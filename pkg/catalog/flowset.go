package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/validator"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// Messages are the texts the engine sends on its own behalf.
type Messages struct {
	NotUnderstood   string `json:"not_understood"`
	NotAvailable    string `json:"not_available"`
	ActionFailed    string `json:"action_failed"`
	InvalidInput    string `json:"invalid_input"`
	TooManyAttempts string `json:"too_many_attempts"`
	FlowUnavailable string `json:"flow_unavailable"`
	Busy            string `json:"busy"`
}

// DefaultMessages returns the built-in system texts.
func DefaultMessages() Messages {
	return Messages{
		NotUnderstood:   "Sorry, I didn't understand that.",
		NotAvailable:    "Sorry, that option is not available right now.",
		ActionFailed:    "Sorry, something went wrong on our side. Please try again later.",
		InvalidInput:    "That doesn't look right, please try again.",
		TooManyAttempts: "Too many invalid attempts.",
		FlowUnavailable: "That conversation is no longer available.",
		Busy:            "We're still working on your previous message. Please try again in a moment.",
	}
}

// FlowSet is one immutable generation of flow and menu definitions.
// It is safe for concurrent reads.
type FlowSet struct {
	flows     map[string]*domain.FlowDefinition
	flowOrder []string
	menus     map[string]*domain.MenuDefinition
	menuOrder []string
	mainMenu  string

	// triggers and resets are keyed by validator.Fold.
	triggers map[string]string
	resets   map[string]bool
	messages Messages

	generation uint64
	loadedAt   time.Time
}

// Flow returns the flow with the given id (getFlow).
func (s *FlowSet) Flow(id string) (*domain.FlowDefinition, error) {
	f, ok := s.flows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, id)
	}
	return f, nil
}

// Menu returns the menu with the given id (getMenu).
func (s *FlowSet) Menu(id string) (*domain.MenuDefinition, error) {
	m, ok := s.menus[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMenuNotFound, id)
	}
	return m, nil
}

// Step returns a step of a flow.
func (s *FlowSet) Step(flowID, stepID string) (*domain.StepDefinition, error) {
	f, err := s.Flow(flowID)
	if err != nil {
		return nil, err
	}
	step, ok := f.Step(stepID)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrStepNotFound, flowID, stepID)
	}
	return step, nil
}

// MainMenu returns the top-level menu. A compiled set always has one.
func (s *FlowSet) MainMenu() *domain.MenuDefinition {
	return s.menus[s.mainMenu]
}

// MainMenuID returns the id of the top-level menu.
func (s *FlowSet) MainMenuID() string { return s.mainMenu }

// Flows returns every flow in declaration order.
func (s *FlowSet) Flows() []*domain.FlowDefinition {
	out := make([]*domain.FlowDefinition, len(s.flowOrder))
	for i, id := range s.flowOrder {
		out[i] = s.flows[id]
	}
	return out
}

// Menus returns every menu in declaration order.
func (s *FlowSet) Menus() []*domain.MenuDefinition {
	out := make([]*domain.MenuDefinition, len(s.menuOrder))
	for i, id := range s.menuOrder {
		out[i] = s.menus[id]
	}
	return out
}

// MatchTrigger finds the flow whose entry trigger equals text, compared
// case-insensitively.
func (s *FlowSet) MatchTrigger(text string) (*domain.FlowDefinition, bool) {
	id, ok := s.triggers[validator.Fold(text)]
	if !ok {
		return nil, false
	}
	return s.flows[id], true
}

// IsResetKeyword reports whether text asks to leave the current flow.
func (s *FlowSet) IsResetKeyword(text string) bool {
	return s.resets[validator.Fold(text)]
}

// Messages returns the system texts of this generation.
func (s *FlowSet) Messages() Messages { return s.messages }

// Generation is a counter incremented by every successful catalog load.
func (s *FlowSet) Generation() uint64 { return s.generation }

// LoadedAt is when this generation was compiled.
func (s *FlowSet) LoadedAt() time.Time { return s.loadedAt }

// ActionIDs returns every action id referenced by steps or menu options,
// sorted and without duplicates.
func (s *FlowSet) ActionIDs() []string {
	seen := make(map[string]bool)
	for _, f := range s.flows {
		for _, step := range f.Steps {
			for _, a := range step.Actions {
				seen[a.ID] = true
			}
		}
	}
	for _, m := range s.menus {
		for _, o := range m.Options {
			if o.Kind == domain.OptionAction {
				seen[o.ActionID] = true
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnknownActions cross-references ActionIDs against a dispatcher registry.
func (s *FlowSet) UnknownActions(has func(string) bool) []string {
	var missing []string
	for _, id := range s.ActionIDs() {
		if !has(id) {
			missing = append(missing, id)
		}
	}
	return missing
}
