package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/schema"
	"github.com/stretchr/testify/require"
)

// AstroFlowsYAML is the reference catalog used across package tests: a main
// menu with a submenu, an onboarding flow collecting birth details and a
// compatibility flow.
const AstroFlowsYAML = `
main_menu: main
defaults:
  max_retries: 2
reset_keywords: [menu, cancel]
messages:
  not_understood: "Sorry, I didn't understand that."
menus:
  - id: main
    prompt: "What would you like to do today?"
    options:
      - {id: daily, label: Daily horoscope, action: horoscope.daily}
      - {id: profile, label: Set up my profile, flow: onboarding}
      - {id: tarot, label: Tarot reading, action: tarot.draw}
      - {id: more, label: More services, menu: more}
  - id: more
    prompt: "More services"
    options:
      - {id: compat, label: Compatibility check, flow: compatibility}
      - {id: back, label: Back, menu: main}
flows:
  - id: onboarding
    title: Profile setup
    entry: ask_name
    triggers: [start, register]
    steps:
      - id: ask_name
        prompt: "What's your name?"
        input: {type: text, pattern: '^.{2,40}$'}
        save_as: name
        next: ask_birth_date
      - id: ask_birth_date
        prompt: "Thanks {{name}}! When were you born? (DD/MM/YYYY)"
        input: {type: text, pattern: '^\d{2}/\d{2}/\d{4}$'}
        save_as: birth_date
        on_invalid: {prompt: "Please use the format DD/MM/YYYY."}
        next: ask_birth_hour
      - id: ask_birth_hour
        prompt: "At what hour were you born? (0-23)"
        input: {type: range, min: 0, max: 23}
        save_as: birth_hour
        next: confirm
      - id: confirm
        prompt: "Save {{name}}, born {{birth_date}}?"
        input:
          type: choice
          options:
            - {id: "yes", label: "Yes, save it"}
            - {id: "no", label: "No, start again"}
        branches:
          - {when: 'input == "no"', next: ask_name}
        next: ask_reading
      - id: ask_reading
        prompt: "All set! Which reading would you like first?"
        input:
          type: choice
          options:
            - {id: daily, label: Daily horoscope}
            - {id: tarot, label: Tarot card}
        actions: [profile.save, reading.welcome]
        on_failure: ask_reading
        next: END
  - id: compatibility
    entry: ask_partner_sign
    triggers: [compatibility, match]
    steps:
      - id: ask_partner_sign
        prompt: "What's your partner's sign?"
        input:
          type: choice
          options: [aries, taurus, gemini, cancer, leo, virgo, libra, scorpio, sagittarius, capricorn, aquarius, pisces]
        save_as: partner_sign
        actions: [compatibility.check]
        next: MAIN_MENU
`

// AstroDocs parses AstroFlowsYAML into raw documents.
func AstroDocs(t testing.TB) []map[string]any {
	t.Helper()
	raw, err := schema.Parse("astro.yaml", []byte(AstroFlowsYAML))
	require.NoError(t, err, "fixture must parse")
	return []map[string]any{raw}
}

// SetupFlowDir creates a temporary directory holding the given files.
// It returns the absolute path and fails the test immediately on error.
func SetupFlowDir(t testing.TB, files map[string]string) string {
	t.Helper()

	tmpDir := t.TempDir()
	absPath, err := filepath.Abs(tmpDir)
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	for name, content := range files {
		path := filepath.Join(absPath, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "Failed to write %s", name)
	}
	return absPath
}
