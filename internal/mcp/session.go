// ABOUTME: Per-connection session lifecycle: framing, heartbeats, ordered dispatch
// ABOUTME: Owns the write lock and state machine for one streaming connection

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iherath/oura-mcp-remote/internal/auth"
	"github.com/iherath/oura-mcp-remote/internal/tools"
)

// Session connection states.
const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

var errSessionClosed = errors.New("session closed")

// framing selects how outbound frames are encoded on the wire.
type framing interface {
	contentType() string
	encode(payload []byte) []byte
}

// ndjsonFraming writes one JSON object per line.
type ndjsonFraming struct{}

func (ndjsonFraming) contentType() string { return "application/json" }

func (ndjsonFraming) encode(payload []byte) []byte {
	return append(payload, '\n')
}

// sseFraming writes text/event-stream data blocks.
type sseFraming struct{}

func (sseFraming) contentType() string { return "text/event-stream" }

func (sseFraming) encode(payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	return buf
}

// session owns one streaming connection after authentication. Writes are
// serialized through writeMu so heartbeats never interleave with an
// in-progress response write.
type session struct {
	id       string
	identity *auth.Identity
	server   *Server
	frame    framing
	logger   *slog.Logger

	w     io.Writer
	flush func()

	writeMu sync.Mutex
	state   atomic.Int32

	// client is built lazily on the first tools/call
	client tools.DataClient
}

// newSession constructs a session over an arbitrary writer. Split from the
// HTTP path so dispatch can be exercised without a live connection.
func newSession(server *Server, identity *auth.Identity, frame framing, w io.Writer, flush func()) *session {
	if flush == nil {
		flush = func() {}
	}
	id := uuid.New().String()
	return &session{
		id:       id,
		identity: identity,
		server:   server,
		frame:    frame,
		logger:   server.logger.With("conn_id", id, "user_id", identity.UserID),
		w:        w,
		flush:    flush,
	}
}

// serve runs the full lifecycle of one streaming connection: preamble
// headers, heartbeat loop, ordered message dispatch, teardown.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, frame framing) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		// Reachable only if the auth middleware was not installed.
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess := newSession(s, identity, frame, w, flusher.Flush)

	w.Header().Set("Content-Type", frame.contentType())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess.logger.Info("streaming connection opened", "method", r.Method)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	hbDone := make(chan struct{})
	go sess.heartbeatLoop(ctx, hbDone, s.heartbeat)

	if r.Method == http.MethodPost {
		sess.readLoop(ctx, r.Body)
	}

	// The response never completes on its own; hold the connection until the
	// client goes away or the server shuts down.
	<-ctx.Done()

	sess.beginClose()
	cancel()
	<-hbDone
	sess.finishClose()

	sess.logger.Info("streaming connection closed")
}

// readLoop consumes the inbound body as a stream of framed messages,
// handling each to completion before reading the next. This is the only
// reader for the connection, so per-connection ordering is structural.
// Frames larger than MaxMessageSize are discarded without disturbing the
// frames that follow them.
func (c *session) readLoop(ctx context.Context, body io.Reader) {
	reader := bufio.NewReaderSize(body, 64*1024)

	var line []byte
	skipping := false

	for {
		if ctx.Err() != nil {
			return
		}

		chunk, err := reader.ReadSlice('\n')
		if !skipping && len(chunk) > 0 {
			line = append(line, chunk...)
			if len(line) > MaxMessageSize {
				skipping = true
				line = nil
			}
		}

		switch {
		case err == nil:
			if skipping {
				dropped := c.server.droppedFrames.Add(1)
				c.logger.Debug("dropping oversized frame", "dropped_total", dropped)
				skipping = false
				continue
			}
			if msg := bytes.TrimSpace(line); len(msg) > 0 {
				c.handleMessage(ctx, msg)
			}
			line = nil
		case errors.Is(err, bufio.ErrBufferFull):
			// Frame continues past the read buffer; keep accumulating.
		default:
			// EOF or transport failure. A trailing unterminated frame is
			// still a frame.
			if !skipping {
				if msg := bytes.TrimSpace(line); len(msg) > 0 {
					c.handleMessage(ctx, msg)
				}
			}
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.logger.Warn("transport read error", "error", err)
			}
			return
		}
	}
}

// handleMessage parses and dispatches one inbound framed message. Chunks
// that do not parse are dropped without a response; every parseable message
// receives exactly one outbound frame.
func (c *session) handleMessage(ctx context.Context, raw []byte) {
	var req JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		dropped := c.server.droppedFrames.Add(1)
		c.logger.Debug("dropping unparseable frame",
			"error", err,
			"bytes", len(raw),
			"dropped_total", dropped,
		)
		return
	}

	c.logger.Debug("inbound message", "json_rpc_method", req.Method)

	switch req.Method {
	case "initialize":
		c.handleInitialize(req)
	case "tools/list":
		c.handleToolsList(req)
	case "tools/call":
		c.handleToolsCall(ctx, req)
	default:
		c.writeError(req.ID, JSONRPCMethodNotFound, "method not found: "+req.Method)
	}
}

// handleInitialize answers the protocol handshake. No upstream call.
func (c *session) handleInitialize(req JSONRPCRequest) {
	result := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    c.server.name,
			"version": c.server.version,
		},
	}
	c.writeResult(req.ID, result)
}

// handleToolsList answers with the fixed tool registry descriptor.
func (c *session) handleToolsList(req JSONRPCRequest) {
	defs := c.server.registry.Definitions()
	result := ListToolsResult{Tools: make([]ToolInfo, len(defs))}
	for i, d := range defs {
		result.Tools[i] = ToolInfo{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}
	}
	c.writeResult(req.ID, result)
}

// handleToolsCall resolves and invokes one tool against the upstream
// service using the connection's credential. The upstream call completes
// before the caller reads the next message, so at most one upstream request
// is in flight per connection.
func (c *session) handleToolsCall(ctx context.Context, req JSONRPCRequest) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			c.writeError(req.ID, JSONRPCInvalidParams, "invalid params")
			return
		}
	}

	client, err := c.dataClient(ctx)
	if err != nil {
		c.writeError(req.ID, JSONRPCInternalError, err.Error())
		return
	}

	text, err := c.server.registry.Call(ctx, client, params.Name, params.Arguments)
	if err != nil {
		c.logger.Warn("tool call failed", "tool_name", params.Name, "error", err)
		c.writeError(req.ID, JSONRPCInternalError, err.Error())
		return
	}

	c.writeResult(req.ID, CallToolResult{
		Content: []ToolContent{{Type: "text", Text: text}},
	})
}

// dataClient returns the upstream client for this connection, resolving the
// credential and building the client on first use.
func (c *session) dataClient(ctx context.Context) (tools.DataClient, error) {
	if c.client != nil {
		return c.client, nil
	}

	token, err := c.server.credentials.OuraTokenFor(ctx, c.identity.UserID)
	if err != nil {
		return nil, err
	}

	c.client = c.server.newClient(token)
	return c.client, nil
}

// heartbeatLoop emits one liveness frame per interval until the context is
// cancelled or a write fails. Closes done on exit so teardown can join it
// before releasing the transport.
func (c *session) heartbeatLoop(ctx context.Context, done chan<- struct{}, interval time.Duration) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			hb := heartbeatFrame{
				Type:      "heartbeat",
				Timestamp: tick.UTC().Format(time.RFC3339),
			}
			if err := c.writeFrame(hb); err != nil {
				if !errors.Is(err, errSessionClosed) {
					c.logger.Debug("heartbeat write failed", "error", err)
				}
				return
			}
		}
	}
}

// writeResult emits a success frame carrying the same id as the request.
func (c *session) writeResult(id json.RawMessage, result any) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	if err := c.writeFrame(resp); err != nil {
		c.logger.Warn("failed to write response frame", "error", err)
	}
}

// writeError emits an error frame. A nil id marshals as null per JSON-RPC.
func (c *session) writeError(id json.RawMessage, code int, message string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
	if err := c.writeFrame(resp); err != nil {
		c.logger.Warn("failed to write error frame", "error", err)
	}
}

// writeFrame marshals and writes one outbound frame under the write lock.
func (c *session) writeFrame(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.state.Load() != stateOpen {
		return errSessionClosed
	}

	if _, err := c.w.Write(c.frame.encode(payload)); err != nil {
		return err
	}
	c.flush()
	return nil
}

// beginClose moves the session to CLOSING so no new frames start writing.
func (c *session) beginClose() {
	c.state.CompareAndSwap(stateOpen, stateClosing)
}

// finishClose marks the session fully CLOSED once the heartbeat has joined.
func (c *session) finishClose() {
	c.state.Store(stateClosed)
}
