// Package mcp exposes the conversation engine as a Model Context Protocol
// server, so agents and operators can drive and inspect conversations.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jammysunshine/astro-whatsapp-bot/internal/logging"
	"github.com/jammysunshine/astro-whatsapp-bot/internal/sanitize"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/catalog"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	persistence "github.com/jammysunshine/astro-whatsapp-bot/pkg/persistence/middleware"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// FlowsURI is the resource holding the active definitions.
const FlowsURI = "astrobot://flows"

// Engine is what the MCP server drives.
type Engine interface {
	ports.ConversationEngine
	ports.SessionInspector
	Sessions(ctx context.Context) ([]string, error)
	Flows() *catalog.FlowSet
}

// SendMessageArgs are the arguments of the send_message tool.
type SendMessageArgs struct {
	UserID   string `json:"user_id"`
	Text     string `json:"text,omitempty"`
	OptionID string `json:"option_id,omitempty"`
}

// UserArgs identify a session.
type UserArgs struct {
	UserID string `json:"user_id"`
}

// ConversationResponse is returned by send_message.
type ConversationResponse struct {
	Messages []domain.OutgoingMessage `json:"messages" jsonschema_description:"Replies in delivery order"`
	Session  *domain.Session          `json:"session,omitempty" jsonschema_description:"The session after the event"`
}

// SessionsResponse is returned by list_sessions.
type SessionsResponse struct {
	UserIDs []string `json:"user_ids"`
}

// Server wraps the engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	redactor  *persistence.Redactor
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithRedactor masks session values returned to clients.
func WithRedactor(r *persistence.Redactor) Option {
	return func(s *Server) { s.redactor = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new MCP server named after version.
func NewServer(engine Engine, version string, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("astrobot-mcp", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Deliver a message from a user to the bot and return the replies. Set exactly one of text and option_id."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Conversation id, e.g. whatsapp:+15550001111")),
		mcp.WithString("text", mcp.Description("Free text typed by the user")),
		mcp.WithString("option_id", mcp.Description("Id of a selected menu or choice option")),
		mcp.WithOutputSchema[ConversationResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Return the stored session of a user."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Conversation id")),
		mcp.WithOutputSchema[domain.Session](),
	), mcp.NewStructuredToolHandler(s.handleGetSession))

	s.mcpServer.AddTool(mcp.NewTool("reset_session",
		mcp.WithDescription("Delete the session of a user. The next message starts at the main menu."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Conversation id")),
	), s.handleResetSession)

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List the ids of stored sessions."),
		mcp.WithOutputSchema[SessionsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListSessions))

	s.mcpServer.AddTool(mcp.NewTool("get_flows",
		mcp.WithDescription("Describe the active flows and menus."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.Marshal(s.engine.Flows().Summary())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args SendMessageArgs) (ConversationResponse, error) {
	if args.UserID == "" {
		return ConversationResponse{}, errors.New("user_id is required")
	}
	if (args.Text == "") == (args.OptionID == "") {
		return ConversationResponse{}, errors.New("exactly one of text and option_id is required")
	}

	clean, err := sanitize.Input(args.Text+args.OptionID, 0)
	if err != nil {
		s.logger.Warn("MCP send_message: input rejected", "err", err, "size", len(args.Text))
		return ConversationResponse{}, fmt.Errorf("input rejected: %w", err)
	}
	var ev domain.IncomingEvent = domain.FreeText{Raw: clean}
	if args.OptionID != "" {
		ev = domain.MenuSelection{OptionID: clean}
	}

	replies, err := s.engine.HandleInboundEvent(ctx, args.UserID, ev)
	if err != nil {
		return ConversationResponse{}, fmt.Errorf("send failed: %w", err)
	}
	resp := ConversationResponse{Messages: replies}
	if sess, err := s.engine.Session(ctx, args.UserID); err == nil {
		resp.Session = s.redactor.Session(sess)
	}
	return resp, nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest, args UserArgs) (domain.Session, error) {
	sess, err := s.engine.Session(ctx, args.UserID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("session %q: %w", args.UserID, err)
	}
	return *s.redactor.Session(sess), nil
}

func (s *Server) handleResetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.engine.ResetSession(ctx, userID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("session %s reset", userID)), nil
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest, _ map[string]any) (SessionsResponse, error) {
	ids, err := s.engine.Sessions(ctx)
	if err != nil {
		return SessionsResponse{}, fmt.Errorf("list failed: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return SessionsResponse{UserIDs: ids}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(FlowsURI, "Active flow definitions",
		mcp.WithMIMEType("application/json"),
	), s.readFlows)
}

func (s *Server) readFlows(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(s.engine.Flows().Summary())
	if err != nil {
		return nil, fmt.Errorf("failed to encode flows: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FlowsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
