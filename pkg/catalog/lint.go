package catalog

import (
	"fmt"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// Lint reports non-fatal problems of a compiled set: steps unreachable from
// their flow's entry step, and flows or menus no menu option or trigger leads to.
func Lint(set *FlowSet) []string {
	var warnings []string

	for _, f := range set.Flows() {
		visited := Reachable(f)
		for _, id := range f.StepOrder {
			if !visited[id] {
				warnings = append(warnings, fmt.Sprintf("flows[%s].steps[%s]: unreachable from entry step %q", f.ID, id, f.EntryStepID))
			}
		}
	}

	flowUsed := make(map[string]bool)
	for _, id := range set.triggers {
		flowUsed[id] = true
	}
	menuUsed := map[string]bool{set.mainMenu: true}
	for _, m := range set.Menus() {
		for _, o := range m.Options {
			switch o.Kind {
			case domain.OptionFlow:
				flowUsed[o.FlowID] = true
			case domain.OptionSubmenu:
				menuUsed[o.MenuID] = true
			}
		}
	}
	for _, f := range set.Flows() {
		if !flowUsed[f.ID] {
			warnings = append(warnings, fmt.Sprintf("flows[%s]: no menu option or trigger starts this flow", f.ID))
		}
	}
	for _, m := range set.Menus() {
		if !menuUsed[m.ID] {
			warnings = append(warnings, fmt.Sprintf("menus[%s]: no option leads to this menu", m.ID))
		}
	}
	return warnings
}

// Reachable crawls a flow breadth-first from its entry step and returns the
// set of visited step ids.
func Reachable(f *domain.FlowDefinition) map[string]bool {
	visited := make(map[string]bool)
	queue := []string{f.EntryStepID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}
		step, ok := f.Step(current)
		if !ok {
			continue
		}
		visited[current] = true

		for _, target := range step.Targets() {
			if target != "" && !domain.IsTerminal(target) && !visited[target] {
				queue = append(queue, target)
			}
		}
	}
	return visited
}
