package tests

import (
	"context"
	"testing"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
)

// ConfigSourceContractTest is a reusable test suite that verifies if an adapter
// complies with ports.ConfigSource. wantIDs are flow ids the source is expected
// to yield across all of its documents.
func ConfigSourceContractTest(t *testing.T, source ports.ConfigSource, wantIDs []string) {
	t.Helper()

	t.Run("Load", func(t *testing.T) {
		docs, err := source.Load(context.Background())
		if err != nil {
			t.Fatalf("unexpected error loading documents: %v", err)
		}
		if len(docs) == 0 {
			t.Fatal("expected at least one document")
		}

		found := make(map[string]bool)
		for _, doc := range docs {
			flows, _ := doc["flows"].([]any)
			for _, f := range flows {
				if m, ok := f.(map[string]any); ok {
					if id, ok := m["id"].(string); ok {
						found[id] = true
					}
				}
			}
		}
		for _, id := range wantIDs {
			if !found[id] {
				t.Errorf("expected flow %q in loaded documents", id)
			}
		}
	})

	t.Run("Load Is Repeatable", func(t *testing.T) {
		a, err := source.Load(context.Background())
		if err != nil {
			t.Fatalf("first load: %v", err)
		}
		b, err := source.Load(context.Background())
		if err != nil {
			t.Fatalf("second load: %v", err)
		}
		if len(a) != len(b) {
			t.Errorf("document count changed between loads: %d != %d", len(a), len(b))
		}
	})
}
