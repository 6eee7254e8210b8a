package astrobot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/sanitize"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
)

// Runner drives the engine from a line-oriented reader and writer, standing
// in for a messaging transport. It backs the chat command and tests.
type Runner struct {
	Input  io.Reader
	Output io.Writer
	// UserID identifies the simulated sender.
	UserID string
	// Headless suppresses the banner and the input prompt.
	Headless bool
	Renderer ContentRenderer
}

// ContentRenderer transforms message bodies before output (for example
// markdown to ANSI) without coupling the core package to a terminal library.
type ContentRenderer func(string) (string, error)

// SelectPrefix marks a line as a structured selection: "#daily" is sent as
// MenuSelection{OptionID: "daily"}.
const SelectPrefix = "#"

// NewRunner creates a runner for userID. Input and Output must be set.
func NewRunner(userID string) *Runner {
	return &Runner{UserID: userID}
}

// Run reads lines until EOF or "exit" and prints the replies of each.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	if r.UserID == "" {
		return fmt.Errorf("user id must be set")
	}

	lineReader := bufio.NewReader(r.Input)
	if !r.Headless {
		fmt.Fprintln(r.Output, "--- astrobot chat (type 'exit' to quit, '#id' to pick an option) ---")
	}

	for {
		if !r.Headless {
			fmt.Fprint(r.Output, "> ")
		}
		text, err := lineReader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("input error: %w", err)
		}
		line := strings.TrimSpace(text)

		if line == "exit" || line == "quit" {
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		}
		if line != "" {
			clean, serr := sanitize.Input(line, 0)
			if serr != nil {
				fmt.Fprintf(r.Output, "(input rejected: %v)\n", serr)
			} else {
				replies, herr := engine.HandleInboundEvent(ctx, r.UserID, ParseLine(clean))
				if herr != nil {
					return herr
				}
				r.print(replies)
			}
		}

		if err == io.EOF {
			return nil
		}
	}
}

// ParseLine converts a typed line into an event.
func ParseLine(line string) domain.IncomingEvent {
	if id, ok := strings.CutPrefix(line, SelectPrefix); ok && id != "" {
		return domain.MenuSelection{OptionID: id}
	}
	return domain.FreeText{Raw: line}
}

func (r *Runner) print(replies []domain.OutgoingMessage) {
	for _, msg := range replies {
		output := msg.Body
		if r.Renderer != nil {
			if rendered, err := r.Renderer(output); err == nil {
				output = rendered
			}
		}
		fmt.Fprintln(r.Output, strings.TrimSpace(output))
		for i, o := range msg.Options {
			fmt.Fprintf(r.Output, "  %d. %s [%s%s]\n", i+1, o.Label, SelectPrefix, o.ID)
		}
	}
}
