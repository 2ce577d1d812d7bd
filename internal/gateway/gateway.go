// ABOUTME: Gateway orchestrator wiring auth, users, tools, and MCP streaming
// ABOUTME: Manages the HTTP server lifecycle, routes, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/iherath/oura-mcp-remote/internal/auth"
	"github.com/iherath/oura-mcp-remote/internal/config"
	"github.com/iherath/oura-mcp-remote/internal/mcp"
	"github.com/iherath/oura-mcp-remote/internal/oura"
	"github.com/iherath/oura-mcp-remote/internal/tools"
	"github.com/iherath/oura-mcp-remote/internal/users"
)

const (
	// ServerName and ServerVersion identify this gateway in discovery
	// documents and initialize responses.
	ServerName    = "oura-mcp-server"
	ServerVersion = "1.0.0"

	shutdownTimeout = 5 * time.Second
)

// Gateway orchestrates the gateway server components. It owns the user
// store, the auth middleware, the MCP streaming server, and the single
// HTTP server that fronts them.
type Gateway struct {
	config      *config.Config
	logger      *slog.Logger
	userStore   users.Store
	userManager *users.Manager
	verifier    *auth.JWTVerifier

	// credentials holds upstream tokens for callers who authenticated
	// with a raw Oura personal access token
	credentials *auth.CredentialStore

	mcpServer  *mcp.Server
	httpServer *http.Server

	// closeConns cancels the base context shared by all in-flight
	// requests so streaming sessions unwind during shutdown
	closeConns context.CancelFunc

	// listening is closed by Run once the listener is bound; Addr waits
	// on it
	listening  chan struct{}
	listenAddr string

	startTime time.Time
}

// initUserStore creates the user store based on config and environment.
func initUserStore(cfg *config.Config) (users.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("OURA_MCP_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := users.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing user store: %w", err)
	}
	return s, nil
}

// New creates a gateway with all components wired but not yet listening.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	userStore, err := initUserStore(cfg)
	if err != nil {
		return nil, err
	}

	userManager, err := users.NewManager(users.Config{
		Store:    userStore,
		Tokens:   verifier,
		TokenTTL: cfg.Auth.TokenTTL,
		Logger:   logger,
	})
	if err != nil {
		userStore.Close()
		return nil, fmt.Errorf("creating user manager: %w", err)
	}

	gw := &Gateway{
		config:      cfg,
		logger:      logger,
		userStore:   userStore,
		userManager: userManager,
		verifier:    verifier,
		credentials: auth.NewCredentialStore(),
		listening:   make(chan struct{}),
		startTime:   time.Now(),
	}

	registry := tools.NewRegistry(logger)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Registry:          registry,
		Credentials:       gw,
		NewClient:         gw.newOuraClient,
		Logger:            logger,
		HeartbeatInterval: cfg.MCP.HeartbeatInterval,
		ServerName:        ServerName,
		ServerVersion:     ServerVersion,
	})
	if err != nil {
		userStore.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	gw.mcpServer = mcpServer

	// Streaming connections live until their request context ends, so the
	// server hands every request a context this gateway can cancel.
	baseCtx, closeConns := context.WithCancel(context.Background())
	gw.closeConns = closeConns

	gw.httpServer = &http.Server{
		Addr:        cfg.Server.HTTPAddr,
		Handler:     gw.buildMux(),
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	return gw, nil
}

// newOuraClient builds an upstream client bound to one credential. Passed
// into the MCP server as its client factory.
func (g *Gateway) newOuraClient(token string) tools.DataClient {
	return oura.New(oura.Config{
		Token:   token,
		BaseURL: g.config.Oura.BaseURL,
		Timeout: g.config.Oura.RequestTimeout,
		Logger:  g.logger,
	})
}

// validateOuraToken probes the upstream API with a candidate personal
// access token. Used by the auth middleware for PAT-style credentials.
func (g *Gateway) validateOuraToken(ctx context.Context, token string) error {
	client := oura.New(oura.Config{
		Token:   token,
		BaseURL: g.config.Oura.BaseURL,
		Timeout: g.config.Oura.RequestTimeout,
		Logger:  g.logger,
	})
	return client.Validate(ctx)
}

// OuraTokenFor resolves the upstream credential for an authenticated
// subject. PAT-derived subjects resolve through the credential store;
// registered users resolve through their stored profile.
func (g *Gateway) OuraTokenFor(ctx context.Context, subject string) (string, error) {
	if strings.HasPrefix(subject, "oura_") {
		if token, ok := g.credentials.Get(subject); ok {
			return token, nil
		}
		return "", fmt.Errorf("oura api token not found for user %s", subject)
	}

	user, err := g.userStore.GetUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return "", fmt.Errorf("oura api token not found for user %s", subject)
		}
		return "", fmt.Errorf("looking up user: %w", err)
	}
	if user.OuraToken == "" {
		return "", fmt.Errorf("oura api token not found for user %s", subject)
	}
	return user.OuraToken, nil
}

// buildMux registers all public and auth-gated routes.
func (g *Gateway) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /.well-known/mcp", g.handleDiscovery)
	mux.HandleFunc("GET /info", g.handleInfo)
	mux.HandleFunc("POST /register", g.handleRegister)
	mux.HandleFunc("POST /auth/login", g.handleLogin)

	// Streaming endpoints, all behind the auth dispatcher. The three
	// mounts differ only in framing.
	authMiddleware := auth.Middleware(auth.MiddlewareConfig{
		Verifier:    g.verifier,
		Users:       g.userManager,
		Upstream:    auth.UpstreamValidatorFunc(g.validateOuraToken),
		Credentials: g.credentials,
		Logger:      g.logger,
	})

	ndjson := authMiddleware(http.HandlerFunc(g.mcpServer.HandleNDJSON))
	sse := authMiddleware(http.HandlerFunc(g.mcpServer.HandleSSE))

	mux.Handle("GET /sse", ndjson)
	mux.Handle("POST /sse", ndjson)
	mux.Handle("GET /mcp", sse)
	mux.Handle("POST /mcp", sse)
	mux.Handle("GET /{$}", ndjson)
	mux.Handle("POST /{$}", ndjson)

	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails, then performs a graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	if g.config.Users.SeedTestUser {
		if err := g.userManager.SeedTestUser(ctx, os.Getenv("TEST_OURA_TOKEN")); err != nil {
			return fmt.Errorf("seeding test user: %w", err)
		}
	}

	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.httpServer.Addr, err)
	}
	g.listenAddr = ln.Addr().String()
	close(g.listening)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases resources. Open streaming
// connections are closed by the server shutdown; their sessions observe
// the cancellation and tear down cleanly.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []string

	// Unblock the streaming sessions first so the HTTP shutdown below can
	// drain them instead of timing out.
	g.closeConns()

	if err := g.httpServer.Shutdown(ctx); err != nil {
		g.logger.Error("HTTP shutdown error", "error", err)
		errs = append(errs, fmt.Sprintf("HTTP shutdown: %v", err))
	}

	if err := g.userStore.Close(); err != nil {
		g.logger.Error("user store close error", "error", err)
		errs = append(errs, fmt.Sprintf("user store close: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	g.logger.Info("gateway shutdown complete")
	return nil
}

// Handler exposes the full route table for tests.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Addr returns the bound listen address. Blocks until Run has bound its
// listener, so it only makes sense to call while Run is in flight.
func (g *Gateway) Addr() string {
	<-g.listening
	return g.listenAddr
}
