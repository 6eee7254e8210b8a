// Package twilio delivers engine replies over WhatsApp through the Twilio
// REST API and verifies Twilio webhook signatures.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppPrefix marks WhatsApp addresses in Twilio.
const WhatsAppPrefix = "whatsapp:"

// MaxBodyLength is the WhatsApp body limit enforced by Twilio.
const MaxBodyLength = 1600

// MessageCreator is the subset of the Twilio API the sender uses.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds the Twilio account settings.
type Opts struct {
	AccountSID string
	AuthToken  string
	// From is the sender number, with or without the whatsapp: prefix.
	From string

	api    MessageCreator
	logger *slog.Logger
}

// Option configures a Sender.
type Option func(*Opts)

func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithAPI replaces the REST client, for tests.
func WithAPI(api MessageCreator) Option {
	return func(o *Opts) { o.api = api }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Opts) { o.logger = l }
}

// Sender implements ports.MessageSender.
type Sender struct {
	api    MessageCreator
	from   string
	logger *slog.Logger
}

// NewSender validates the options and builds a sender.
func NewSender(opts ...Option) (*Sender, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNop()
	}
	if cfg.From == "" {
		return nil, errors.New("from number must be provided")
	}
	if cfg.api == nil {
		if cfg.AccountSID == "" || cfg.AuthToken == "" {
			return nil, errors.New("account SID and auth token must be provided")
		}
		cfg.api = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}).Api
	}
	return &Sender{
		api:    cfg.api,
		from:   WhatsAppAddress(cfg.From),
		logger: cfg.logger,
	}, nil
}

// Send delivers msgs in order, one Twilio message each. It stops at the
// first failure.
func (s *Sender) Send(ctx context.Context, userID string, msgs []domain.OutgoingMessage) error {
	to := WhatsAppAddress(userID)
	for i, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, body := range Split(FormatMessage(msg), MaxBodyLength) {
			params := &twilioApi.CreateMessageParams{}
			params.SetTo(to)
			params.SetFrom(s.from)
			params.SetBody(body)

			if _, err := s.api.CreateMessage(params); err != nil {
				s.logger.Error("Twilio send failed", "to", to, "index", i, "err", err)
				return fmt.Errorf("failed to send message %d to %s: %w", i, to, err)
			}
		}
	}
	s.logger.Debug("Twilio messages sent", "to", to, "count", len(msgs))
	return nil
}

// WhatsAppAddress adds the whatsapp: prefix when missing.
func WhatsAppAddress(number string) string {
	if strings.HasPrefix(number, WhatsAppPrefix) {
		return number
	}
	return WhatsAppPrefix + number
}

// FormatMessage renders a message as WhatsApp text. Options become a
// numbered list, which the menu matcher accepts back by position.
func FormatMessage(msg domain.OutgoingMessage) string {
	if len(msg.Options) == 0 {
		return msg.Body
	}
	var sb strings.Builder
	sb.WriteString(msg.Body)
	for i, opt := range msg.Options {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(opt.Label)
	}
	return sb.String()
}

// Split cuts text into chunks of at most limit runes, preferring line breaks.
func Split(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// SignatureValidator checks the X-Twilio-Signature header of webhooks.
type SignatureValidator struct {
	validator client.RequestValidator
}

// NewSignatureValidator builds a validator for authToken.
func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: client.NewRequestValidator(authToken)}
}

// Validate reports whether signature matches url and the form params.
func (v *SignatureValidator) Validate(url string, params map[string]string, signature string) bool {
	return v.validator.Validate(url, params, signature)
}

var _ ports.MessageSender = (*Sender)(nil)
