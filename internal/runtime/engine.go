package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/validator"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
)

// Engine runs one processing cycle for one inbound event. It holds no
// per-user state: the caller loads the session, hands it to Process and
// persists the result.
type Engine struct {
	dispatcher   ports.ActionDispatcher
	resolver     *Resolver
	evaluator    ConditionEvaluator
	interpolator Interpolator
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	now          func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConditionEvaluator replaces the expr-lang branch evaluator.
func WithConditionEvaluator(eval ConditionEvaluator) EngineOption {
	return func(e *Engine) {
		e.evaluator = eval
	}
}

// WithInterpolator replaces the {{key}} prompt interpolator.
func WithInterpolator(interp Interpolator) EngineOption {
	return func(e *Engine) {
		e.interpolator = interp
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine dispatching actions through dispatcher.
func NewEngine(dispatcher ports.ActionDispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		dispatcher:   dispatcher,
		interpolator: DefaultInterpolator,
		logger:       logging.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = NewResolver(e.evaluator, e.logger)
	return e
}

// cycle carries the inputs of one Process call.
type cycle struct {
	*Engine
	ctx  context.Context
	set  *catalog.FlowSet
	sess *domain.Session
	ev   domain.IncomingEvent
}

// Process interprets ev against sess using the definitions of set. The
// session is mutated in place; the returned messages are in send order.
// fresh reports that sess was just created for a first contact or after
// expiry.
//
// Process never fails: invalid input, unknown actions and action failures
// are folded into the returned messages.
func (e *Engine) Process(ctx context.Context, set *catalog.FlowSet, sess *domain.Session, fresh bool, ev domain.IncomingEvent) []domain.OutgoingMessage {
	c := &cycle{Engine: e, ctx: ctx, set: set, sess: sess, ev: ev}
	if sess.ContextData == nil {
		sess.ContextData = make(map[string]any)
	}

	if sess.InFlow() {
		c.emitInbound("flow")
		return c.inFlow()
	}
	c.emitInbound("menu")
	return c.inMenu(fresh)
}

// inMenu interprets the event against the active menu, then flow triggers.
func (c *cycle) inMenu(fresh bool) []domain.OutgoingMessage {
	menu := c.activeMenu()
	raw := c.ev.RawInput()
	_, typed := c.ev.(domain.FreeText)

	if typed && c.set.IsResetKeyword(raw) {
		return c.toMenu(c.set.MainMenu(), "")
	}

	if choice, ok := validator.MatchMenuOption(menu.Choices(), c.ev); ok {
		opt, _ := menu.Option(choice.ID)
		return c.selectOption(menu, opt)
	}

	if typed {
		if f, ok := c.set.MatchTrigger(raw); ok {
			return c.enterFlow(f)
		}
	}

	if fresh {
		return []domain.OutgoingMessage{c.renderMenu(c.ctx, menu, c.sess)}
	}
	return []domain.OutgoingMessage{c.renderMenu(c.ctx, menu, c.sess).WithNotice(c.set.Messages().NotUnderstood)}
}

// activeMenu returns the session's menu, falling back to the main menu when
// it no longer exists.
func (c *cycle) activeMenu() *domain.MenuDefinition {
	if c.sess.ActiveMenuID != "" {
		if m, err := c.set.Menu(c.sess.ActiveMenuID); err == nil {
			return m
		}
		c.logger.Warn("Active menu no longer exists", "user_id", c.sess.UserID, "menu_id", c.sess.ActiveMenuID)
		c.sess.ActiveMenuID = ""
	}
	return c.set.MainMenu()
}

func (c *cycle) selectOption(menu *domain.MenuDefinition, opt *domain.MenuOption) []domain.OutgoingMessage {
	switch opt.Kind {
	case domain.OptionFlow:
		f, err := c.set.Flow(opt.FlowID)
		if err != nil {
			return c.toMenu(c.set.MainMenu(), c.set.Messages().FlowUnavailable)
		}
		return c.enterFlow(f)

	case domain.OptionSubmenu:
		sub, err := c.set.Menu(opt.MenuID)
		if err != nil {
			return c.toMenu(c.set.MainMenu(), c.set.Messages().NotAvailable)
		}
		return c.toMenu(sub, "")

	default:
		res := c.dispatch(opt.ActionID, opt.Args, "", "", opt.ID)
		if !res.Success {
			return c.toMenu(c.set.MainMenu(), c.set.Messages().NotAvailable)
		}
		c.sess.ApplyPatch(res.ContextPatch)
		if len(res.OutboundMessages) == 0 {
			return []domain.OutgoingMessage{c.renderMenu(c.ctx, menu, c.sess)}
		}
		return res.OutboundMessages
	}
}

func (c *cycle) enterFlow(f *domain.FlowDefinition) []domain.OutgoingMessage {
	return c.goTo(f, f.EntryStepID, "", 0)
}

// toMenu switches the session to menu mode on menu and renders it.
func (c *cycle) toMenu(menu *domain.MenuDefinition, notice string) []domain.OutgoingMessage {
	c.sess.ExitFlow()
	if menu.ID != c.set.MainMenuID() {
		c.sess.ActiveMenuID = menu.ID
	}
	c.emitStepEnter("", "", menu.ID)
	return []domain.OutgoingMessage{c.renderMenu(c.ctx, menu, c.sess).WithNotice(notice)}
}

// inFlow validates the event against the active step and applies the
// resolved transition.
func (c *cycle) inFlow() []domain.OutgoingMessage {
	msgs := c.set.Messages()

	f, err := c.set.Flow(c.sess.ActiveFlowID)
	if err != nil {
		c.logger.Warn("Active flow no longer exists", "user_id", c.sess.UserID, "flow_id", c.sess.ActiveFlowID)
		return c.toMenu(c.set.MainMenu(), msgs.FlowUnavailable)
	}
	step, ok := f.Step(c.sess.ActiveStepID)
	if !ok {
		c.logger.Warn("Active step no longer exists", "user_id", c.sess.UserID, "flow_id", f.ID, "step_id", c.sess.ActiveStepID)
		return c.toMenu(c.set.MainMenu(), msgs.FlowUnavailable)
	}

	if _, typed := c.ev.(domain.FreeText); typed && c.set.IsResetKeyword(c.ev.RawInput()) {
		return c.toMenu(c.set.MainMenu(), "")
	}

	outcome := validator.Validate(step.Input, c.ev)
	if !outcome.Valid {
		tr := c.resolver.Resolve(c.ctx, step, outcome, c.sess, msgs)
		c.emitInvalid(f.ID, step.ID, outcome.Reason, tr.Kind == TransitionExhausted)
		return c.goTo(f, tr.Target, tr.Notice, tr.RetryCount)
	}

	if step.SaveAs != "" {
		c.sess.ContextData[step.SaveAs] = outcome.Value
	}
	tr := c.resolver.Resolve(c.ctx, step, outcome, c.sess, msgs)

	var out []domain.OutgoingMessage
	for _, ref := range tr.Actions {
		res := c.dispatch(ref.ID, ref.Args, f.ID, step.ID, outcome.Value)
		if !res.Success {
			notice := msgs.ActionFailed
			if res.Error == domain.ErrUnknownAction {
				notice = msgs.NotAvailable
			}
			return c.goTo(f, step.OnFailure, notice, 0)
		}
		c.sess.ApplyPatch(res.ContextPatch)
		out = append(out, res.OutboundMessages...)
	}

	return append(out, c.goTo(f, tr.Target, tr.Notice, tr.RetryCount)...)
}

// goTo moves the session to target within f and renders the result. Terminal
// targets leave the flow; END renders nothing but the notice.
func (c *cycle) goTo(f *domain.FlowDefinition, target, notice string, retryCount int) []domain.OutgoingMessage {
	switch target {
	case domain.TargetMainMenu:
		return c.toMenu(c.set.MainMenu(), notice)
	case domain.TargetEnd:
		c.sess.ExitFlow()
		if notice == "" {
			return nil
		}
		return []domain.OutgoingMessage{domain.Text(notice)}
	}

	step, ok := f.Step(target)
	if !ok {
		c.logger.Warn("Transition target no longer exists", "user_id", c.sess.UserID, "flow_id", f.ID, "target", target)
		return c.toMenu(c.set.MainMenu(), c.set.Messages().FlowUnavailable)
	}
	c.sess.EnterStep(f.ID, step.ID)
	c.sess.RetryCount = retryCount
	c.emitStepEnter(f.ID, step.ID, "")
	return []domain.OutgoingMessage{c.renderStep(c.ctx, f.ID, step, c.sess).WithNotice(notice)}
}

// dispatch runs one action with a snapshot of the session context.
func (c *cycle) dispatch(actionID string, args map[string]any, flowID, stepID string, input any) domain.ActionResult {
	actx := domain.ActionContext{
		UserID:  c.sess.UserID,
		FlowID:  flowID,
		StepID:  stepID,
		Input:   input,
		Context: domain.CopyContext(c.sess.ContextData),
		Args:    args,
	}

	c.emitAction(c.hooks.OnActionDispatch, domain.EventActionDispatch, actionID, domain.ActionResult{}, 0)
	start := c.now()
	res := c.dispatcher.Dispatch(c.ctx, actionID, actx)
	c.emitAction(c.hooks.OnActionReturn, domain.EventActionReturn, actionID, res, c.now().Sub(start))

	if !res.Success {
		c.logger.Warn("Action failed",
			"user_id", c.sess.UserID,
			"action_id", actionID,
			"kind", res.Error,
			"err", res.Err,
			"flow_id", flowID,
			"step_id", stepID,
		)
	}
	return res
}

func (c *cycle) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: c.now(), Type: t, UserID: c.sess.UserID}
}

func (c *cycle) emitInbound(mode string) {
	if c.hooks.OnInbound != nil {
		c.hooks.OnInbound(c.ctx, &domain.InboundEvent{EventBase: c.base(domain.EventInbound), Mode: mode})
	}
}

func (c *cycle) emitStepEnter(flowID, stepID, menuID string) {
	if c.hooks.OnStepEnter != nil {
		c.hooks.OnStepEnter(c.ctx, &domain.StepEvent{
			EventBase: c.base(domain.EventStepEnter),
			FlowID:    flowID,
			StepID:    stepID,
			MenuID:    menuID,
		})
	}
}

func (c *cycle) emitInvalid(flowID, stepID string, reason validator.Reason, exhausted bool) {
	if c.hooks.OnInvalidInput != nil {
		c.hooks.OnInvalidInput(c.ctx, &domain.ValidationEvent{
			EventBase: c.base(domain.EventInvalidInput),
			FlowID:    flowID,
			StepID:    stepID,
			Reason:    string(reason),
			Exhausted: exhausted,
		})
	}
}

func (c *cycle) emitAction(hook func(context.Context, *domain.ActionEvent), t domain.EventType, actionID string, res domain.ActionResult, d time.Duration) {
	if hook == nil {
		return
	}
	hook(c.ctx, &domain.ActionEvent{
		EventBase: c.base(t),
		ActionID:  actionID,
		Success:   res.Success,
		Error:     res.Error,
		Duration:  d,
	})
}
