package schema

// Input rule type names accepted in documents.
const (
	InputText   = "text"
	InputChoice = "choice"
	InputRange  = "range"
	InputNone   = "none"
)

// Document is one decoded configuration document.
type Document struct {
	Version       string   `mapstructure:"version" yaml:"version,omitempty" json:"version,omitempty"`
	MainMenu      string   `mapstructure:"main_menu" yaml:"main_menu,omitempty" json:"main_menu,omitempty"`
	Defaults      Defaults `mapstructure:"defaults" yaml:"defaults,omitempty" json:"defaults,omitempty"`
	ResetKeywords []string `mapstructure:"reset_keywords" yaml:"reset_keywords,omitempty" json:"reset_keywords,omitempty"`
	Messages      Messages `mapstructure:"messages" yaml:"messages,omitempty" json:"messages,omitempty"`

	Flows []FlowSpec `mapstructure:"flows" yaml:"flows,omitempty" json:"flows,omitempty"`
	Menus []MenuSpec `mapstructure:"menus" yaml:"menus,omitempty" json:"menus,omitempty"`
}

// Defaults apply to every step that does not override them.
type Defaults struct {
	MaxRetries *int   `mapstructure:"max_retries" yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	Recovery   string `mapstructure:"recovery" yaml:"recovery,omitempty" json:"recovery,omitempty"`
	OnFailure  string `mapstructure:"on_failure" yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
}

// Messages overrides the system texts the engine sends on its own.
type Messages struct {
	NotUnderstood   string `mapstructure:"not_understood" yaml:"not_understood,omitempty" json:"not_understood,omitempty"`
	NotAvailable    string `mapstructure:"not_available" yaml:"not_available,omitempty" json:"not_available,omitempty"`
	ActionFailed    string `mapstructure:"action_failed" yaml:"action_failed,omitempty" json:"action_failed,omitempty"`
	InvalidInput    string `mapstructure:"invalid_input" yaml:"invalid_input,omitempty" json:"invalid_input,omitempty"`
	TooManyAttempts string `mapstructure:"too_many_attempts" yaml:"too_many_attempts,omitempty" json:"too_many_attempts,omitempty"`
	FlowUnavailable string `mapstructure:"flow_unavailable" yaml:"flow_unavailable,omitempty" json:"flow_unavailable,omitempty"`
	Busy            string `mapstructure:"busy" yaml:"busy,omitempty" json:"busy,omitempty"`
}

// FlowSpec declares a flow.
type FlowSpec struct {
	ID         string     `mapstructure:"id" yaml:"id" json:"id"`
	Title      string     `mapstructure:"title" yaml:"title,omitempty" json:"title,omitempty"`
	Entry      string     `mapstructure:"entry" yaml:"entry,omitempty" json:"entry,omitempty"`
	Triggers   []string   `mapstructure:"triggers" yaml:"triggers,omitempty" json:"triggers,omitempty"`
	MaxRetries *int       `mapstructure:"max_retries" yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	Steps      []StepSpec `mapstructure:"steps" yaml:"steps" json:"steps"`
}

// StepSpec declares a step.
type StepSpec struct {
	ID         string       `mapstructure:"id" yaml:"id" json:"id"`
	Prompt     string       `mapstructure:"prompt" yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Input      InputSpec    `mapstructure:"input" yaml:"input,omitempty" json:"input,omitempty"`
	Next       string       `mapstructure:"next" yaml:"next,omitempty" json:"next,omitempty"`
	Branches   []BranchSpec `mapstructure:"branches" yaml:"branches,omitempty" json:"branches,omitempty"`
	Actions    []ActionSpec `mapstructure:"actions" yaml:"actions,omitempty" json:"actions,omitempty"`
	SaveAs     string       `mapstructure:"save_as" yaml:"save_as,omitempty" json:"save_as,omitempty"`
	OnInvalid  InvalidSpec  `mapstructure:"on_invalid" yaml:"on_invalid,omitempty" json:"on_invalid,omitempty"`
	MaxRetries *int         `mapstructure:"max_retries" yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	Recovery   string       `mapstructure:"recovery" yaml:"recovery,omitempty" json:"recovery,omitempty"`
	OnFailure  string       `mapstructure:"on_failure" yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
}

// InputSpec declares an input rule. Type defaults to "none".
type InputSpec struct {
	Type    string       `mapstructure:"type" yaml:"type,omitempty" json:"type,omitempty"`
	Pattern string       `mapstructure:"pattern" yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Options []ChoiceSpec `mapstructure:"options" yaml:"options,omitempty" json:"options,omitempty"`
	Min     *float64     `mapstructure:"min" yaml:"min,omitempty" json:"min,omitempty"`
	Max     *float64     `mapstructure:"max" yaml:"max,omitempty" json:"max,omitempty"`
}

// ChoiceSpec is one option of a choice input. A bare string is both id and label.
type ChoiceSpec struct {
	ID    string `mapstructure:"id" yaml:"id" json:"id"`
	Label string `mapstructure:"label" yaml:"label,omitempty" json:"label,omitempty"`
}

// BranchSpec is a conditional onValid target.
type BranchSpec struct {
	When string `mapstructure:"when" yaml:"when" json:"when"`
	Next string `mapstructure:"next" yaml:"next" json:"next"`
}

// ActionSpec references an action. A bare string is the action id.
type ActionSpec struct {
	ID   string         `mapstructure:"id" yaml:"id" json:"id"`
	Args map[string]any `mapstructure:"args" yaml:"args,omitempty" json:"args,omitempty"`
}

// InvalidSpec declares the per-attempt invalid-input policy.
type InvalidSpec struct {
	Prompt string `mapstructure:"prompt" yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Next   string `mapstructure:"next" yaml:"next,omitempty" json:"next,omitempty"`
}

// MenuSpec declares a menu.
type MenuSpec struct {
	ID      string       `mapstructure:"id" yaml:"id" json:"id"`
	Prompt  string       `mapstructure:"prompt" yaml:"prompt,omitempty" json:"prompt,omitempty"`
	Options []OptionSpec `mapstructure:"options" yaml:"options" json:"options"`
}

// OptionSpec declares a menu option. Exactly one of Action, Flow and Menu must be set.
type OptionSpec struct {
	ID     string         `mapstructure:"id" yaml:"id" json:"id"`
	Label  string         `mapstructure:"label" yaml:"label" json:"label"`
	Action string         `mapstructure:"action" yaml:"action,omitempty" json:"action,omitempty"`
	Args   map[string]any `mapstructure:"args" yaml:"args,omitempty" json:"args,omitempty"`
	Flow   string         `mapstructure:"flow" yaml:"flow,omitempty" json:"flow,omitempty"`
	Menu   string         `mapstructure:"menu" yaml:"menu,omitempty" json:"menu,omitempty"`
}
