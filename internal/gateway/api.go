// ABOUTME: Public HTTP endpoints: health, discovery, info, registration, login
// ABOUTME: Request/response types and JSON helpers for the non-streaming surface

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/iherath/oura-mcp-remote/internal/users"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	PID           int    `json:"pid"`
}

// RegisterRequest is the body for POST /register.
type RegisterRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	OuraAPIToken string `json:"ouraApiToken"`
}

// RegisterResponse summarizes a newly created account.
type RegisterResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LoginRequest is the body for POST /auth/login. A non-empty ouraApiToken
// rotates the stored upstream credential on successful login.
type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	OuraAPIToken string `json:"ouraApiToken,omitempty"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// handleHealth reports process liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(g.startTime).Seconds()),
		PID:           os.Getpid(),
	})
}

// handleDiscovery serves the MCP discovery document.
func (g *Gateway) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"name":    ServerName,
		"version": ServerVersion,
		"capabilities": map[string]any{
			"tools":     true,
			"resources": false,
			"prompts":   false,
		},
		"authentication": map[string]any{
			"type":        "bearer",
			"description": "Oura personal access token or session token issued at login",
		},
		"endpoints": map[string]string{
			"sse":       "/sse",
			"streaming": "/mcp",
			"health":    "/health",
		},
	})
}

// handleInfo serves a human-oriented server summary.
func (g *Gateway) handleInfo(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"name":        ServerName,
		"version":     ServerVersion,
		"description": "Remote MCP server for Oura Ring wellness data",
		"endpoints": map[string]string{
			"health":    "/health",
			"discovery": "/.well-known/mcp",
			"register":  "/register",
			"login":     "/auth/login",
			"sse":       "/sse",
			"mcp":       "/mcp",
		},
	})
}

// handleRegister creates a user account with a stored Oura credential.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		g.sendJSONError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}

	user, err := g.userManager.Register(r.Context(), req.Username, req.Email, req.Password, req.OuraAPIToken)
	if err != nil {
		if errors.Is(err, users.ErrEmailExists) || errors.Is(err, users.ErrUsernameExists) {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.logger.Error("registration failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	g.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	g.writeJSON(w, http.StatusCreated, RegisterResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

// handleLogin authenticates a registered user and returns a session token.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Email == "" || req.Password == "" {
		g.sendJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := g.userManager.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			g.sendJSONError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		g.logger.Error("login failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if req.OuraAPIToken != "" {
		// The freshly issued token identifies the user; verify locally
		// rather than threading the user through Authenticate.
		claims, err := g.verifier.Verify(token)
		if err == nil {
			if err := g.userManager.UpdateOuraToken(r.Context(), claims.UserID, req.OuraAPIToken); err != nil {
				g.logger.Error("failed to rotate oura token", "user_id", claims.UserID, "error", err)
			}
		}
	}

	g.writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(g.config.Auth.TokenTTL.Seconds()),
	})
}

// writeJSON writes a JSON response with the given status code.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
