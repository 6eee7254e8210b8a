package astrobot_test

import (
	"context"
	"fmt"
	"log"

	astrobot "github.com/jammysunshine/astro-whatsapp-bot"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/memory"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/registry"
)

// ExampleNew_memory runs a two-step flow defined in code.
func ExampleNew_memory() {
	source := memory.NewSource(map[string]any{
		"menus": []any{
			map[string]any{
				"id":     "main",
				"prompt": "Hi! Pick one:",
				"options": []any{
					map[string]any{"id": "sign", "label": "Find my sign", "flow": "sign"},
				},
			},
		},
		"flows": []any{
			map[string]any{
				"id": "sign",
				"steps": []any{
					map[string]any{
						"id":      "ask_month",
						"prompt":  "In which month were you born? (1-12)",
						"input":   map[string]any{"type": "range", "min": 1, "max": 12},
						"save_as": "month",
						"actions": []any{"sign.lookup"},
						"next":    "MAIN_MENU",
					},
				},
			},
		},
	})

	reg := registry.NewRegistry()
	reg.MustRegister("sign.lookup", func(_ context.Context, actx domain.ActionContext) (domain.ActionResult, error) {
		return domain.ActionResult{
			Success:          true,
			OutboundMessages: []domain.OutgoingMessage{domain.Text(fmt.Sprintf("Month %v noted.", actx.Input))},
		}, nil
	})

	eng, err := astrobot.New(context.Background(), "", astrobot.WithSource(source), astrobot.WithRegistry(reg))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	for _, ev := range []domain.IncomingEvent{
		domain.FreeText{Raw: "hello"},
		domain.MenuSelection{OptionID: "sign"},
		domain.FreeText{Raw: "13"},
		domain.FreeText{Raw: "8"},
	} {
		replies, err := eng.HandleInboundEvent(ctx, "user-1", ev)
		if err != nil {
			log.Fatal(err)
		}
		for _, r := range replies {
			fmt.Printf("%q\n", r.Body)
		}
	}

	// Output:
	// "Hi! Pick one:"
	// "In which month were you born? (1-12)"
	// "That doesn't look right, please try again.\n\nIn which month were you born? (1-12)"
	// "Month 8 noted."
	// "Hi! Pick one:"
}
