// Package process runs actions as external commands, so content generators
// can be written in any language.
//
// The command receives the domain.ActionContext as JSON on stdin and each
// argument as an ASTROBOT_ARG_<KEY> variable. Its stdout is either a JSON
// object ({"messages": [...], "reply": "...", "context_patch": {...}}) or
// plain text sent back as one message.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/registry"
)

// EnvPrefix prefixes the variables passed to commands.
const EnvPrefix = "ASTROBOT_"

// ErrNotRegistered is returned for action ids without a command.
var ErrNotRegistered = errors.New("process action not registered")

var unsafeEnvChars = regexp.MustCompile(`[^A-Z0-9_]`)

// Runner executes allow-listed commands on behalf of actions.
type Runner struct {
	actions map[string]ActionConfig
	baseDir string
	logger  *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithActions populates the allow-list from a loaded config.
func WithActions(actions map[string]ActionConfig) RunnerOption {
	return func(r *Runner) {
		for id, a := range actions {
			a.ID = id
			r.actions[id] = a
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		actions: make(map[string]ActionConfig),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(id string, command string, args ...string) {
	r.actions[id] = ActionConfig{ID: id, Command: command, Args: args}
}

// IDs returns the registered action ids, sorted.
func (r *Runner) IDs() []string {
	ids := make([]string, 0, len(r.actions))
	for id := range r.actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RegisterAll binds every configured command into reg.
func (r *Runner) RegisterAll(reg *registry.Registry) error {
	for _, id := range r.IDs() {
		if err := reg.Register(id, r.Handler(id)); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the registry handler running the command of id.
func (r *Runner) Handler(id string) registry.Handler {
	return func(ctx context.Context, actx domain.ActionContext) (domain.ActionResult, error) {
		return r.Execute(ctx, id, actx)
	}
}

// output is the JSON a command may print.
type output struct {
	Messages     []domain.OutgoingMessage `json:"messages"`
	Reply        string                   `json:"reply"`
	ContextPatch map[string]any           `json:"context_patch"`
}

// Execute runs the command bound to id. A non-zero exit is an error carrying
// stderr. Cancelling ctx kills the process.
func (r *Runner) Execute(ctx context.Context, id string, actx domain.ActionContext) (domain.ActionResult, error) {
	proc, ok := r.actions[id]
	if !ok {
		return domain.ActionResult{}, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}

	stdin, err := json.Marshal(actx)
	if err != nil {
		return domain.ActionResult{}, fmt.Errorf("failed to encode action context: %w", err)
	}

	// Arguments travel as environment variables, never as command flags.
	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = append(cmd.Environ(), environment(proc, actx)...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running process action", "action_id", id, "command", proc.Command, "user_id", actx.UserID)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return domain.ActionResult{}, ctx.Err()
		}
		return domain.ActionResult{}, fmt.Errorf("execution failed: %w. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseOutput(stdout.Bytes())
}

func environment(proc ActionConfig, actx domain.ActionContext) []string {
	env := []string{
		EnvPrefix + "USER_ID=" + actx.UserID,
		EnvPrefix + "ACTION_ID=" + actx.ActionID,
		EnvPrefix + "FLOW_ID=" + actx.FlowID,
		EnvPrefix + "STEP_ID=" + actx.StepID,
	}
	if actx.Input != nil {
		env = append(env, EnvPrefix+"INPUT="+stringify(actx.Input))
	}
	for k, v := range proc.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range actx.Args {
		key := unsafeEnvChars.ReplaceAllString(strings.ToUpper(k), "_")
		env = append(env, fmt.Sprintf("%sARG_%s=%s", EnvPrefix, key, stringify(v)))
	}
	return env
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	default:
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return fmt.Sprintf("%v", v)
	}
}

func parseOutput(stdout []byte) (domain.ActionResult, error) {
	trimmed := strings.TrimSpace(string(stdout))
	if trimmed == "" {
		return domain.ActionResult{}, nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var out output
		if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
			return domain.ActionResult{}, fmt.Errorf("invalid JSON output: %w", err)
		}
		res := domain.ActionResult{ContextPatch: out.ContextPatch}
		if out.Reply != "" {
			res.OutboundMessages = append(res.OutboundMessages, domain.Text(out.Reply))
		}
		for _, m := range out.Messages {
			if m.Kind == "" {
				m.Kind = domain.MessageText
			}
			res.OutboundMessages = append(res.OutboundMessages, m)
		}
		return res, nil
	}

	return domain.ActionResult{OutboundMessages: []domain.OutgoingMessage{domain.Text(trimmed)}}, nil
}
