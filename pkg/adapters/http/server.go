// Package http exposes the conversation engine over HTTP: the Twilio
// WhatsApp webhook, a JSON API for other channels and operator endpoints.
package http

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/sanitize"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/twilio"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	persistence "github.com/jammysunshine/astro-whatsapp-bot/pkg/persistence/middleware"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
)

// DefaultWebhookPath is where Twilio posts inbound WhatsApp messages.
const DefaultWebhookPath = "/webhook/twilio"

// DefaultDedupTTL is how long a platform message id is remembered.
const DefaultDedupTTL = 24 * time.Hour

// Engine is what the server drives.
type Engine interface {
	ports.ConversationEngine
	ports.SessionInspector
	Flows() *catalog.FlowSet
}

// SignatureValidator verifies webhook signatures.
type SignatureValidator interface {
	Validate(url string, params map[string]string, signature string) bool
}

// Server routes HTTP requests to the engine.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	sender       ports.MessageSender
	dedup        ports.Deduplicator
	dedupTTL     time.Duration
	validator    SignatureValidator
	publicURL    string
	webhookPath  string
	apiToken     string
	metrics      http.Handler
	redactor     *persistence.Redactor
	maxInputSize int
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSender delivers webhook replies through the platform API. Without a
// sender, replies are returned inline as TwiML.
func WithSender(s ports.MessageSender) Option {
	return func(srv *Server) { srv.sender = s }
}

// WithDeduplicator drops redelivered messages with the same id.
func WithDeduplicator(d ports.Deduplicator, ttl time.Duration) Option {
	return func(srv *Server) {
		srv.dedup = d
		if ttl > 0 {
			srv.dedupTTL = ttl
		}
	}
}

// WithSignatureValidator rejects webhooks whose signature does not match.
// publicURL is the externally visible base URL; empty derives it from the
// request.
func WithSignatureValidator(v SignatureValidator, publicURL string) Option {
	return func(srv *Server) {
		srv.validator = v
		srv.publicURL = strings.TrimRight(publicURL, "/")
	}
}

// WithWebhookPath overrides DefaultWebhookPath.
func WithWebhookPath(path string) Option {
	return func(srv *Server) {
		if path != "" {
			srv.webhookPath = path
		}
	}
}

// WithAPIToken requires "Authorization: Bearer <token>" on /v1 routes.
func WithAPIToken(token string) Option {
	return func(srv *Server) { srv.apiToken = token }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(srv *Server) { srv.metrics = h }
}

// WithRedactor masks session values returned by the API.
func WithRedactor(r *persistence.Redactor) Option {
	return func(srv *Server) { srv.redactor = r }
}

// WithMaxInputSize overrides sanitize.DefaultMaxInputSize.
func WithMaxInputSize(n int) Option {
	return func(srv *Server) { srv.maxInputSize = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// NewServer builds a server around engine.
func NewServer(engine Engine, opts ...Option) *Server {
	srv := &Server{
		Engine:       engine,
		Streams:      NewStreamManager(),
		dedupTTL:     DefaultDedupTTL,
		webhookPath:  DefaultWebhookPath,
		maxInputSize: sanitize.DefaultMaxInputSize,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	r.Post(s.webhookPath, s.TwilioWebhook)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/messages", s.PostMessage)
		r.Get("/flows", s.GetFlows)
		r.Get("/sessions/{userID}", s.GetSession)
		r.Delete("/sessions/{userID}", s.DeleteSession)
		r.Get("/sessions/{userID}/events", s.SubscribeEvents)
	})
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken != "" && r.Header.Get("Authorization") != "Bearer "+s.apiToken {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// process runs one event through the engine, guarded by the deduplicator.
// duplicate is true when messageID was already handled.
func (s *Server) process(ctx context.Context, userID, messageID string, ev domain.IncomingEvent) (replies []domain.OutgoingMessage, duplicate bool, err error) {
	if s.dedup != nil && messageID != "" {
		first, err := s.dedup.Claim(ctx, messageID, s.dedupTTL)
		if err != nil {
			return nil, false, fmt.Errorf("dedup claim failed: %w", err)
		}
		if !first {
			s.logger.Info("Dropping redelivered message", "message_id", messageID, "user_id", userID)
			return nil, true, nil
		}
	}

	before, _ := s.Engine.Session(ctx, userID)
	replies, err = s.Engine.HandleInboundEvent(ctx, userID, ev)
	if err != nil {
		if s.dedup != nil && messageID != "" {
			// Let the platform retry.
			_ = s.dedup.Release(context.WithoutCancel(ctx), messageID)
		}
		return nil, false, err
	}

	if s.Streams.HasSubscribers(userID) {
		if after, err := s.Engine.Session(ctx, userID); err == nil {
			if diff := domain.Diff(before, after); diff != nil {
				if data, err := json.Marshal(diff); err == nil {
					s.Streams.Broadcast(userID, string(data))
				}
			}
		}
	}
	return replies, false, nil
}

type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// TwilioWebhook handles inbound WhatsApp messages posted by Twilio.
func (s *Server) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}
	form := r.PostForm

	if s.validator != nil {
		params := make(map[string]string, len(form))
		for k, v := range form {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !s.validator.Validate(s.requestURL(r), params, r.Header.Get("X-Twilio-Signature")) {
			s.logger.Warn("Rejected webhook with invalid signature", "remote", r.RemoteAddr)
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	userID := form.Get("From")
	if userID == "" {
		http.Error(w, "Missing From", http.StatusBadRequest)
		return
	}
	ev, err := s.eventFromForm(form)
	if err != nil {
		s.logger.Warn("Webhook input rejected", "user_id", userID, "err", err)
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		return
	}

	replies, duplicate, err := s.process(r.Context(), userID, form.Get("MessageSid"), ev)
	if err != nil {
		s.logger.Error("Webhook processing failed", "user_id", userID, "err", err)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	resp := twimlResponse{}
	switch {
	case duplicate:
	case s.sender != nil:
		if err := s.sender.Send(r.Context(), userID, replies); err != nil {
			// The session already advanced; a platform retry would be deduplicated.
			s.logger.Error("Failed to deliver replies", "user_id", userID, "count", len(replies), "err", err)
		}
	default:
		for _, msg := range replies {
			resp.Messages = append(resp.Messages, twilio.FormatMessage(msg))
		}
	}

	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("TwiML encode failed", "err", err)
	}
}

// eventFromForm prefers structured replies (buttons, list pickers) over the
// typed body.
func (s *Server) eventFromForm(form url.Values) (domain.IncomingEvent, error) {
	for _, key := range []string{"ButtonPayload", "ListId"} {
		if id := strings.TrimSpace(form.Get(key)); id != "" {
			clean, err := sanitize.Input(id, s.maxInputSize)
			if err != nil {
				return nil, err
			}
			return domain.MenuSelection{OptionID: clean}, nil
		}
	}
	clean, err := sanitize.Input(form.Get("Body"), s.maxInputSize)
	if err != nil {
		return nil, err
	}
	return domain.FreeText{Raw: clean}, nil
}

func (s *Server) requestURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// MessageRequest is the body of POST /v1/messages. Exactly one of Text and
// OptionID is set.
type MessageRequest struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text,omitempty"`
	OptionID  string `json:"option_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// MessageResponse is the reply of POST /v1/messages.
type MessageResponse struct {
	Messages  []domain.OutgoingMessage `json:"messages"`
	Duplicate bool                     `json:"duplicate,omitempty"`
}

// PostMessage handles POST /v1/messages.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, int64(s.maxInputSize)*4)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if (body.Text == "") == (body.OptionID == "") {
		writeError(w, http.StatusBadRequest, "exactly one of text and option_id is required")
		return
	}

	var ev domain.IncomingEvent
	raw, err := sanitize.Input(body.Text+body.OptionID, s.maxInputSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.OptionID != "" {
		ev = domain.MenuSelection{OptionID: raw}
	} else {
		ev = domain.FreeText{Raw: raw}
	}

	replies, duplicate, err := s.process(r.Context(), body.UserID, body.MessageID, ev)
	if err != nil {
		s.logger.Error("Message processing failed", "user_id", body.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	if replies == nil {
		replies = []domain.OutgoingMessage{}
	}
	writeJSON(w, http.StatusOK, MessageResponse{Messages: replies, Duplicate: duplicate})
}

// GetSession handles GET /v1/sessions/{userID}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sess, err := s.Engine.Session(r.Context(), userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("Session lookup failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, s.redactor.Session(sess))
}

// DeleteSession handles DELETE /v1/sessions/{userID}.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.Engine.ResetSession(r.Context(), userID); err != nil {
		s.logger.Error("Session reset failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "session reset failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetFlows handles GET /v1/flows.
func (s *Server) GetFlows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Flows().Summary())
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"generation": s.Engine.Flows().Generation(),
	})
}

// SubscribeEvents streams session diffs of a user as server-sent events.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	userID := chi.URLParam(r, "userID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(userID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
