package domain

// OptionKind names what a menu option resolves to.
type OptionKind string

const (
	OptionAction  OptionKind = "action"
	OptionFlow    OptionKind = "flow"
	OptionSubmenu OptionKind = "submenu"
)

// MenuDefinition is a flat set of selectable options shown outside any flow.
type MenuDefinition struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt,omitempty"`
	Options []MenuOption `json:"options"`
}

// Option returns the option with the given id.
func (m *MenuDefinition) Option(id string) (*MenuOption, bool) {
	for i := range m.Options {
		if m.Options[i].ID == id {
			return &m.Options[i], true
		}
	}
	return nil, false
}

// Choices projects the menu options into the shape shared with choice steps.
func (m *MenuDefinition) Choices() []Choice {
	out := make([]Choice, len(m.Options))
	for i, o := range m.Options {
		out[i] = Choice{ID: o.ID, Label: o.Label}
	}
	return out
}

// MenuOption resolves to exactly one of an action, a flow or a submenu.
type MenuOption struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Kind     OptionKind     `json:"kind"`
	ActionID string         `json:"action_id,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	FlowID   string         `json:"flow_id,omitempty"`
	MenuID   string         `json:"menu_id,omitempty"`
}
