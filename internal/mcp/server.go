// ABOUTME: MCP streaming server speaking JSON-RPC 2.0 over long-lived HTTP connections
// ABOUTME: Dispatches initialize/tools requests against the Oura tool registry

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/iherath/oura-mcp-remote/internal/tools"
)

// protocolVersion is the MCP protocol revision advertised in initialize responses.
const protocolVersion = "2024-11-05"

// MaxMessageSize is the maximum allowed size for a single framed message (1MB).
const MaxMessageSize = 1 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolInfo describes one tool in the tools/list response.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolContent represents content in a tool result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the result for tools/call.
type CallToolResult struct {
	Content []ToolContent `json:"content"`
}

// heartbeatFrame is the out-of-band liveness signal written while a
// connection is open, independent of inbound traffic.
type heartbeatFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// CredentialSource resolves the Oura access token associated with a
// connection's subject identifier.
type CredentialSource interface {
	OuraTokenFor(ctx context.Context, subject string) (string, error)
}

// ClientFactory builds an upstream data client bound to one credential.
type ClientFactory func(token string) tools.DataClient

// Config holds configuration for the streaming server.
type Config struct {
	Registry    *tools.Registry
	Credentials CredentialSource
	NewClient   ClientFactory
	Logger      *slog.Logger

	// HeartbeatInterval is the liveness signal period. Defaults to 30s.
	HeartbeatInterval time.Duration

	ServerName    string
	ServerVersion string
}

// Server multiplexes MCP sessions over streaming HTTP connections. Each
// authenticated request becomes one session; messages on a session are
// processed strictly in arrival order while independent sessions proceed
// concurrently.
type Server struct {
	registry    *tools.Registry
	credentials CredentialSource
	newClient   ClientFactory
	logger      *slog.Logger
	heartbeat   time.Duration
	name        string
	version     string

	// droppedFrames counts inbound chunks discarded as unparseable.
	droppedFrames atomic.Int64
}

// NewServer creates a streaming server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("credential source is required")
	}
	if cfg.NewClient == nil {
		return nil, errors.New("client factory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat == 0 {
		heartbeat = 30 * time.Second
	}

	name := cfg.ServerName
	if name == "" {
		name = "oura-mcp-server"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "1.0.0"
	}

	return &Server{
		registry:    cfg.Registry,
		credentials: cfg.Credentials,
		newClient:   cfg.NewClient,
		logger:      logger.With("component", "mcp"),
		heartbeat:   heartbeat,
		name:        name,
		version:     version,
	}, nil
}

// HandleNDJSON serves a streaming connection framed as newline-delimited JSON.
func (s *Server) HandleNDJSON(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, ndjsonFraming{})
}

// HandleSSE serves a streaming connection framed as Server-Sent Events.
func (s *Server) HandleSSE(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, sseFraming{})
}

// DroppedFrames returns the number of inbound chunks discarded as
// unparseable since startup (for monitoring).
func (s *Server) DroppedFrames() int64 {
	return s.droppedFrames.Load()
}
