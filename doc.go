/*
Package astrobot is a conversation flow engine for WhatsApp-style chat bots.

Flows and menus are data: YAML or JSON documents describing steps, input
rules, transitions and the actions to dispatch. The engine interprets them
per user as a small state machine. A user is either browsing menus or
positioned on one step of one flow. Each inbound message is validated
against the step's input rule, resolved into a transition, and answered with
an ordered list of outgoing messages.

# Architecture

The engine follows a ports and adapters layout. The core (catalog,
validator, resolver, runtime) is pure; sessions, configuration, action
handlers and transports are injected:

  - ports.ConfigSource yields raw flow documents (file, memory).
  - ports.SessionStore persists sessions with compare-and-set versioning
    (memory, file, redis, sqlite, postgres).
  - registry.Registry maps action ids to handlers with a per-call timeout.
  - Transports (HTTP webhook, MCP, terminal chat) turn platform payloads into
    domain.IncomingEvent values and send the replies.

# Usage

	reg := registry.NewRegistry()
	reg.MustRegister("horoscope.daily", func(ctx context.Context, actx domain.ActionContext) (domain.ActionResult, error) {
		return domain.ActionResult{
			Success:          true,
			OutboundMessages: []domain.OutgoingMessage{domain.Text("The stars are aligned.")},
		}, nil
	})

	eng, err := astrobot.New(ctx, "./flows", astrobot.WithRegistry(reg))
	if err != nil {
		log.Fatal(err) // invalid flow definitions are fatal
	}

	replies, err := eng.HandleInboundEvent(ctx, "whatsapp:+15550001111", domain.FreeText{Raw: "hi"})

Events for the same user are processed one at a time; distinct users are
processed concurrently. Actions run at most once per resolved transition.
*/
package astrobot
