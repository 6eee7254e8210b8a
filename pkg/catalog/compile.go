package catalog

import (
	"fmt"
	"regexp"
	"time"

	"github.com/expr-lang/expr"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/validator"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/schema"
)

// Compile decodes, merges and statically validates raw documents into a
// FlowSet (loadFlows). Every problem found is reported in a single
// *schema.SchemaError.
func Compile(docs ...map[string]any) (*FlowSet, error) {
	var c schema.Collector

	decoded := make([]*schema.Document, 0, len(docs))
	for i, raw := range docs {
		doc, err := schema.Decode(raw)
		if err != nil {
			for _, issue := range schema.Issues(err) {
				issue.Path = joinPath(fmt.Sprintf("documents[%d]", i), issue.Path)
				c.Merge([]schema.Issue{issue})
			}
			continue
		}
		c.Merge(doc.Validate())
		decoded = append(decoded, doc)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	merged := merge(&c, decoded)
	set := &FlowSet{
		flows:    make(map[string]*domain.FlowDefinition),
		menus:    make(map[string]*domain.MenuDefinition),
		triggers: make(map[string]string),
		resets:   make(map[string]bool),
		mainMenu: merged.MainMenu,
		messages: DefaultMessages(),
		loadedAt: time.Now(),
	}
	if set.mainMenu == "" {
		set.mainMenu = domain.DefaultMainMenuID
	}
	for _, d := range decoded {
		set.messages = mergeMessages(set.messages, d.Messages)
	}
	for _, kw := range merged.ResetKeywords {
		set.resets[validator.Fold(kw)] = true
	}

	for _, fs := range merged.Flows {
		if _, dup := set.flows[fs.ID]; dup {
			c.Addf(fmt.Sprintf("flows[%s]", fs.ID), "duplicate flow id %q", fs.ID)
			continue
		}
		f := compileFlow(&c, fs, merged.Defaults)
		set.flows[f.ID] = f
		set.flowOrder = append(set.flowOrder, f.ID)

		for _, trig := range fs.Triggers {
			key := validator.Fold(trig)
			if other, taken := set.triggers[key]; taken {
				c.Addf(fmt.Sprintf("flows[%s].triggers", fs.ID), "trigger %q already starts flow %q", trig, other)
				continue
			}
			set.triggers[key] = f.ID
		}
	}

	for _, ms := range merged.Menus {
		if _, dup := set.menus[ms.ID]; dup {
			c.Addf(fmt.Sprintf("menus[%s]", ms.ID), "duplicate menu id %q", ms.ID)
			continue
		}
		set.menus[ms.ID] = compileMenu(&c, ms)
		set.menuOrder = append(set.menuOrder, ms.ID)
	}

	// Options may point at flows and menus declared in any document.
	for _, id := range set.menuOrder {
		for _, o := range set.menus[id].Options {
			path := fmt.Sprintf("menus[%s].options[%s]", id, o.ID)
			switch o.Kind {
			case domain.OptionFlow:
				if _, ok := set.flows[o.FlowID]; !ok {
					c.Addf(path+".flow", "flow %q not found", o.FlowID)
				}
			case domain.OptionSubmenu:
				if _, ok := set.menus[o.MenuID]; !ok {
					c.Addf(path+".menu", "menu %q not found", o.MenuID)
				}
			case domain.OptionAction:
				// Action ids are checked against the registry at startup.
			}
		}
	}

	if _, ok := set.menus[set.mainMenu]; !ok {
		c.Addf("main_menu", "main menu %q not found", set.mainMenu)
	}

	if err := c.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

func compileFlow(c *schema.Collector, fs schema.FlowSpec, defaults schema.Defaults) *domain.FlowDefinition {
	fp := fmt.Sprintf("flows[%s]", fs.ID)
	f := &domain.FlowDefinition{
		ID:          fs.ID,
		Title:       fs.Title,
		EntryStepID: fs.Entry,
		Triggers:    fs.Triggers,
		Steps:       make(map[string]*domain.StepDefinition, len(fs.Steps)),
	}
	if f.EntryStepID == "" && len(fs.Steps) > 0 {
		f.EntryStepID = fs.Steps[0].ID
	}

	for _, ss := range fs.Steps {
		if _, dup := f.Steps[ss.ID]; dup {
			c.Addf(fmt.Sprintf("%s.steps[%s]", fp, ss.ID), "duplicate step id %q", ss.ID)
			continue
		}
		f.Steps[ss.ID] = compileStep(c, fp, ss, fs, defaults)
		f.StepOrder = append(f.StepOrder, ss.ID)
	}

	if _, ok := f.Steps[f.EntryStepID]; !ok {
		c.Addf(fp+".entry", "entry step %q not found", f.EntryStepID)
	}

	for _, id := range f.StepOrder {
		step := f.Steps[id]
		sp := fmt.Sprintf("%s.steps[%s]", fp, id)
		checkTarget(c, f, sp+".next", step.Next)
		for i, b := range step.Branches {
			checkTarget(c, f, fmt.Sprintf("%s.branches[%d].next", sp, i), b.Next)
		}
		if step.OnInvalid.Next != "" {
			checkTarget(c, f, sp+".on_invalid.next", step.OnInvalid.Next)
		}
		checkTarget(c, f, sp+".recovery", step.Recovery)
		checkTarget(c, f, sp+".on_failure", step.OnFailure)
	}
	return f
}

func compileStep(c *schema.Collector, fp string, ss schema.StepSpec, fs schema.FlowSpec, defaults schema.Defaults) *domain.StepDefinition {
	sp := fmt.Sprintf("%s.steps[%s]", fp, ss.ID)
	step := &domain.StepDefinition{
		ID:        ss.ID,
		Prompt:    ss.Prompt,
		Next:      ss.Next,
		SaveAs:    ss.SaveAs,
		OnInvalid: domain.InvalidPolicy{Prompt: ss.OnInvalid.Prompt, Next: ss.OnInvalid.Next},
		Recovery:  firstNonEmpty(ss.Recovery, defaults.Recovery, domain.TargetMainMenu),
		OnFailure: firstNonEmpty(ss.OnFailure, defaults.OnFailure, domain.TargetMainMenu),
	}

	switch {
	case ss.MaxRetries != nil:
		step.MaxRetries = intPtr(*ss.MaxRetries)
	case fs.MaxRetries != nil:
		step.MaxRetries = intPtr(*fs.MaxRetries)
	case defaults.MaxRetries != nil:
		step.MaxRetries = intPtr(*defaults.MaxRetries)
	}

	switch ss.Input.Type {
	case "", schema.InputNone:
		step.Input = domain.NoneRule{}
	case schema.InputText:
		rule := domain.TextRule{Pattern: ss.Input.Pattern}
		if rule.Pattern != "" {
			// Already checked by schema validation.
			rule.Regexp = regexp.MustCompile(rule.Pattern)
		}
		step.Input = rule
	case schema.InputChoice:
		rule := domain.ChoiceRule{Options: make([]domain.Choice, 0, len(ss.Input.Options))}
		seen := make(map[string]bool)
		for _, o := range ss.Input.Options {
			if seen[o.ID] {
				c.Addf(sp+".input.options", "duplicate option id %q", o.ID)
			}
			seen[o.ID] = true
			rule.Options = append(rule.Options, domain.Choice{ID: o.ID, Label: firstNonEmpty(o.Label, o.ID)})
		}
		step.Input = rule
	case schema.InputRange:
		step.Input = domain.RangeRule{Min: *ss.Input.Min, Max: *ss.Input.Max}
	}

	for i, b := range ss.Branches {
		if _, err := expr.Compile(b.When, expr.AsBool()); err != nil {
			c.Addf(fmt.Sprintf("%s.branches[%d].when", sp, i), "invalid condition: %v", err)
		}
		step.Branches = append(step.Branches, domain.Branch{When: b.When, Next: b.Next})
	}
	for _, a := range ss.Actions {
		step.Actions = append(step.Actions, domain.ActionRef{ID: a.ID, Args: a.Args})
	}
	return step
}

func compileMenu(c *schema.Collector, ms schema.MenuSpec) *domain.MenuDefinition {
	m := &domain.MenuDefinition{ID: ms.ID, Prompt: ms.Prompt}
	seen := make(map[string]bool)
	for _, spec := range ms.Options {
		if seen[spec.ID] {
			c.Addf(fmt.Sprintf("menus[%s].options[%s]", ms.ID, spec.ID), "duplicate option id %q", spec.ID)
			continue
		}
		seen[spec.ID] = true

		opt := domain.MenuOption{ID: spec.ID, Label: spec.Label, Args: spec.Args}
		switch {
		case spec.Action != "":
			opt.Kind, opt.ActionID = domain.OptionAction, spec.Action
		case spec.Flow != "":
			opt.Kind, opt.FlowID = domain.OptionFlow, spec.Flow
		default:
			opt.Kind, opt.MenuID = domain.OptionSubmenu, spec.Menu
		}
		m.Options = append(m.Options, opt)
	}
	return m
}

func checkTarget(c *schema.Collector, f *domain.FlowDefinition, path, target string) {
	if domain.IsTerminal(target) {
		return
	}
	if _, ok := f.Steps[target]; !ok {
		c.Addf(path, "target %q is neither a step of flow %q nor END/MAIN_MENU", target, f.ID)
	}
}

// merge folds every document into one. Scalars must agree when set twice.
func merge(c *schema.Collector, docs []*schema.Document) *schema.Document {
	out := &schema.Document{}
	for _, d := range docs {
		if d.MainMenu != "" {
			if out.MainMenu != "" && out.MainMenu != d.MainMenu {
				c.Addf("main_menu", "conflicting main menus %q and %q", out.MainMenu, d.MainMenu)
			}
			out.MainMenu = d.MainMenu
		}
		if d.Defaults.MaxRetries != nil {
			if out.Defaults.MaxRetries != nil && *out.Defaults.MaxRetries != *d.Defaults.MaxRetries {
				c.Addf("defaults.max_retries", "conflicting values %d and %d", *out.Defaults.MaxRetries, *d.Defaults.MaxRetries)
			}
			out.Defaults.MaxRetries = d.Defaults.MaxRetries
		}
		out.Defaults.Recovery = firstNonEmpty(d.Defaults.Recovery, out.Defaults.Recovery)
		out.Defaults.OnFailure = firstNonEmpty(d.Defaults.OnFailure, out.Defaults.OnFailure)
		out.ResetKeywords = append(out.ResetKeywords, d.ResetKeywords...)
		out.Flows = append(out.Flows, d.Flows...)
		out.Menus = append(out.Menus, d.Menus...)
	}

	for _, target := range []string{out.Defaults.Recovery, out.Defaults.OnFailure} {
		if target != "" && !domain.IsTerminal(target) {
			c.Addf("defaults", "default targets must be END or MAIN_MENU, got %q", target)
		}
	}
	return out
}

func mergeMessages(base Messages, over schema.Messages) Messages {
	base.NotUnderstood = firstNonEmpty(over.NotUnderstood, base.NotUnderstood)
	base.NotAvailable = firstNonEmpty(over.NotAvailable, base.NotAvailable)
	base.ActionFailed = firstNonEmpty(over.ActionFailed, base.ActionFailed)
	base.InvalidInput = firstNonEmpty(over.InvalidInput, base.InvalidInput)
	base.TooManyAttempts = firstNonEmpty(over.TooManyAttempts, base.TooManyAttempts)
	base.FlowUnavailable = firstNonEmpty(over.FlowUnavailable, base.FlowUnavailable)
	base.Busy = firstNonEmpty(over.Busy, base.Busy)
	return base
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intPtr(v int) *int { return &v }

func joinPath(prefix, path string) string {
	if path == "" {
		return prefix
	}
	return prefix + "." + path
}
