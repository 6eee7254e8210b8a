package catalog

import (
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// FlowSummary describes one flow for operator tooling.
type FlowSummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title,omitempty"`
	Entry    string   `json:"entry"`
	Triggers []string `json:"triggers,omitempty"`
	Steps    []string `json:"steps"`
}

// Summary describes a generation of definitions.
type Summary struct {
	Generation uint64                   `json:"generation"`
	LoadedAt   time.Time                `json:"loaded_at"`
	MainMenu   string                   `json:"main_menu"`
	Flows      []FlowSummary            `json:"flows"`
	Menus      []*domain.MenuDefinition `json:"menus"`
}

// Summary describes s, with flows and menus in declaration order.
func (s *FlowSet) Summary() Summary {
	out := Summary{
		Generation: s.generation,
		LoadedAt:   s.loadedAt,
		MainMenu:   s.mainMenu,
		Menus:      s.Menus(),
	}
	for _, f := range s.Flows() {
		out.Flows = append(out.Flows, FlowSummary{
			ID:       f.ID,
			Title:    f.Title,
			Entry:    f.EntryStepID,
			Triggers: f.Triggers,
			Steps:    f.StepOrder,
		})
	}
	return out
}
