package graph

import (
	"fmt"
	"strings"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// Overlay highlights a session's position on the graph.
type Overlay struct {
	FlowID string
	StepID string
	MenuID string
}

// OverlayFor returns the overlay of sess. A nil session has none.
func OverlayFor(sess *domain.Session) *Overlay {
	if sess == nil {
		return nil
	}
	return &Overlay{FlowID: sess.ActiveFlowID, StepID: sess.ActiveStepID, MenuID: sess.ActiveMenuID}
}

// Options selects what GenerateMermaid draws.
type Options struct {
	// FlowID limits the graph to a single flow. Menus are omitted.
	FlowID  string
	Overlay *Overlay
}

const endNode = "end_marker"

// GenerateMermaid produces a Mermaid flowchart of the menus and flows of set.
// It applies semantic styling:
// - Flow entry: ((Circle))
// - Step with actions: [[Subroutine]]
// - Step awaiting input: [/Parallelogram/]
// - Menu: {{Hexagon}}
// Menu jumps into flows and every failure path are dotted.
func GenerateMermaid(set *catalog.FlowSet, opts Options) (string, error) {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	flows := set.Flows()
	if opts.FlowID != "" {
		f, err := set.Flow(opts.FlowID)
		if err != nil {
			return "", err
		}
		flows = []*domain.FlowDefinition{f}
	} else {
		actions := make(map[string]bool)
		for _, m := range set.Menus() {
			writeMenu(&sb, m, set, actions)
		}
	}

	usesEnd := false
	for _, f := range flows {
		if writeFlow(&sb, f, set) {
			usesEnd = true
		}
	}
	if usesEnd {
		fmt.Fprintf(&sb, "    %s((\"END\"))\n", endNode)
	}

	if o := opts.Overlay; o != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		switch {
		case o.FlowID != "" && o.StepID != "":
			fmt.Fprintf(&sb, "    class %s current;\n", stepNode(o.FlowID, o.StepID))
		case opts.FlowID == "":
			menuID := o.MenuID
			if menuID == "" {
				menuID = set.MainMenuID()
			}
			fmt.Fprintf(&sb, "    class %s current;\n", menuNode(menuID))
		}
	}

	return sb.String(), nil
}

func writeMenu(sb *strings.Builder, m *domain.MenuDefinition, set *catalog.FlowSet, actions map[string]bool) {
	id := menuNode(m.ID)
	fmt.Fprintf(sb, "    %s{{\"%s\"}}\n", id, quote(m.ID))
	for _, o := range m.Options {
		label := quote(o.Label)
		switch o.Kind {
		case domain.OptionSubmenu:
			fmt.Fprintf(sb, "    %s -- \"%s\" --> %s\n", id, label, menuNode(o.MenuID))
		case domain.OptionFlow:
			f, err := set.Flow(o.FlowID)
			if err != nil {
				continue
			}
			fmt.Fprintf(sb, "    %s -. \"%s\" .-> %s\n", id, label, stepNode(f.ID, f.EntryStepID))
		case domain.OptionAction:
			target := actionNode(o.ActionID)
			if !actions[o.ActionID] {
				actions[o.ActionID] = true
				fmt.Fprintf(sb, "    %s[[\"%s\"]]\n", target, quote(o.ActionID))
			}
			fmt.Fprintf(sb, "    %s -- \"%s\" --> %s\n", id, label, target)
		}
	}
}

// writeFlow reports whether the flow reaches END.
func writeFlow(sb *strings.Builder, f *domain.FlowDefinition, set *catalog.FlowSet) bool {
	title := f.Title
	if title == "" {
		title = f.ID
	}
	fmt.Fprintf(sb, "    subgraph flow_%s[\"%s\"]\n", sanitizeMermaidID(f.ID), quote(title))

	usesEnd := false
	target := func(to string) string {
		switch to {
		case domain.TargetEnd:
			usesEnd = true
			return endNode
		case domain.TargetMainMenu:
			return menuNode(set.MainMenuID())
		}
		return stepNode(f.ID, to)
	}

	for _, id := range f.StepOrder {
		s, _ := f.Step(id)
		node := stepNode(f.ID, s.ID)

		opener, closer := "[", "]"
		switch {
		case s.ID == f.EntryStepID:
			opener, closer = "((", "))"
		case len(s.Actions) > 0:
			opener, closer = "[[", "]]"
		case s.Input != nil && s.Input.Kind() != domain.RuleNone:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(sb, "        %s%s\"%s\"%s\n", node, opener, quote(s.ID), closer)

		for _, b := range s.Branches {
			fmt.Fprintf(sb, "        %s -- \"%s\" --> %s\n", node, quote(b.When), target(b.Next))
		}
		fmt.Fprintf(sb, "        %s --> %s\n", node, target(s.Next))
		if s.OnInvalid.Next != "" {
			fmt.Fprintf(sb, "        %s -. invalid .-> %s\n", node, target(s.OnInvalid.Next))
		}
		if s.MaxRetries != nil && s.Recovery != "" {
			fmt.Fprintf(sb, "        %s -. \"retries > %d\" .-> %s\n", node, *s.MaxRetries, target(s.Recovery))
		}
		if len(s.Actions) > 0 && s.OnFailure != "" {
			fmt.Fprintf(sb, "        %s -. failure .-> %s\n", node, target(s.OnFailure))
		}
	}
	sb.WriteString("    end\n")
	return usesEnd
}

func menuNode(id string) string { return "menu_" + sanitizeMermaidID(id) }

func stepNode(flowID, stepID string) string {
	return "step_" + sanitizeMermaidID(flowID) + "__" + sanitizeMermaidID(stepID)
}

func actionNode(id string) string { return "action_" + sanitizeMermaidID(id) }

// quote makes text safe inside a double-quoted Mermaid label.
func quote(text string) string {
	return strings.ReplaceAll(text, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_", ":", "_").Replace(id)
}
