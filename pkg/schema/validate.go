package schema

import (
	"fmt"
	"regexp"
)

// Validate performs the structural checks that need no cross-document
// knowledge. Reference resolution and uniqueness are checked by the catalog
// once every document is merged.
func (d *Document) Validate() []Issue {
	var c Collector

	if d.Defaults.MaxRetries != nil && *d.Defaults.MaxRetries < 0 {
		c.Addf("defaults.max_retries", "must not be negative")
	}

	for i, f := range d.Flows {
		fp := fmt.Sprintf("flows[%d]", i)
		if f.ID == "" {
			c.Addf(fp+".id", "is required")
		} else {
			fp = fmt.Sprintf("flows[%s]", f.ID)
		}
		if len(f.Steps) == 0 {
			c.Addf(fp+".steps", "a flow needs at least one step")
		}
		if f.MaxRetries != nil && *f.MaxRetries < 0 {
			c.Addf(fp+".max_retries", "must not be negative")
		}
		for j, s := range f.Steps {
			validateStep(&c, fp, j, s)
		}
	}

	for i, m := range d.Menus {
		mp := fmt.Sprintf("menus[%d]", i)
		if m.ID == "" {
			c.Addf(mp+".id", "is required")
		} else {
			mp = fmt.Sprintf("menus[%s]", m.ID)
		}
		if len(m.Options) == 0 {
			c.Addf(mp+".options", "a menu needs at least one option")
		}
		for j, o := range m.Options {
			validateOption(&c, mp, j, o)
		}
	}

	return c.issues
}

func validateStep(c *Collector, flowPath string, idx int, s StepSpec) {
	sp := fmt.Sprintf("%s.steps[%d]", flowPath, idx)
	if s.ID == "" {
		c.Addf(sp+".id", "is required")
	} else {
		sp = fmt.Sprintf("%s.steps[%s]", flowPath, s.ID)
	}
	if s.Next == "" {
		c.Addf(sp+".next", "is required")
	}
	if s.MaxRetries != nil && *s.MaxRetries < 0 {
		c.Addf(sp+".max_retries", "must not be negative")
	}

	in := s.Input
	switch in.Type {
	case "", InputNone:
	case InputText:
		if in.Pattern != "" {
			if _, err := regexp.Compile(in.Pattern); err != nil {
				c.Addf(sp+".input.pattern", "invalid pattern: %v", err)
			}
		}
	case InputChoice:
		if len(in.Options) < 1 {
			c.Addf(sp+".input.options", "a choice input needs at least one option")
		}
		for k, o := range in.Options {
			if o.ID == "" {
				c.Addf(fmt.Sprintf("%s.input.options[%d].id", sp, k), "is required")
			}
		}
	case InputRange:
		switch {
		case in.Min == nil || in.Max == nil:
			c.Addf(sp+".input", "a range input needs both min and max")
		case *in.Min > *in.Max:
			c.Addf(sp+".input", "min %v is greater than max %v", *in.Min, *in.Max)
		}
	default:
		c.Addf(sp+".input.type", "unknown input type %q", in.Type)
	}

	for k, b := range s.Branches {
		bp := fmt.Sprintf("%s.branches[%d]", sp, k)
		if b.When == "" {
			c.Addf(bp+".when", "is required")
		}
		if b.Next == "" {
			c.Addf(bp+".next", "is required")
		}
	}
	for k, a := range s.Actions {
		if a.ID == "" {
			c.Addf(fmt.Sprintf("%s.actions[%d].id", sp, k), "is required")
		}
	}
}

func validateOption(c *Collector, menuPath string, idx int, o OptionSpec) {
	op := fmt.Sprintf("%s.options[%d]", menuPath, idx)
	if o.ID == "" {
		c.Addf(op+".id", "is required")
	} else {
		op = fmt.Sprintf("%s.options[%s]", menuPath, o.ID)
	}
	if o.Label == "" {
		c.Addf(op+".label", "is required")
	}

	targets := 0
	for _, v := range []string{o.Action, o.Flow, o.Menu} {
		if v != "" {
			targets++
		}
	}
	if targets != 1 {
		c.Addf(op, "an option must set exactly one of action, flow or menu (got %d)", targets)
	}
}
