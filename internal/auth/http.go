// ABOUTME: HTTP middleware implementing the bearer credential dispatcher
// ABOUTME: Classifies Oura PATs vs JWT session tokens and attaches an Identity

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iherath/oura-mcp-remote/internal/users"
)

// Machine-readable 401 reason codes.
const (
	ReasonMissingHeader    = "missing_or_invalid_header"
	ReasonInvalidUpstream  = "invalid_upstream_credential"
	ReasonInvalidOrExpired = "invalid_or_expired_token"
)

const bearerPrefix = "Bearer "

// TokenTypeHeader lets a caller declare its credential type explicitly
// instead of relying on the shape heuristic below. Recognized values are
// TokenTypePAT and TokenTypeSession; anything else falls back to the
// heuristic.
const TokenTypeHeader = "X-Auth-Token-Type"

const (
	TokenTypePAT     = "oura-pat"
	TokenTypeSession = "session"
)

// Credential classification heuristic: anything longer than patMinLength with
// no JWT section delimiter is treated as a raw Oura personal access token.
// This is best-effort dispatch; JWTs always contain '.' so they can never be
// misrouted, but a short PAT would fall through to the session-token branch.
const (
	patMinLength     = 20
	sessionDelimiter = "."
)

// UpstreamValidator probes the upstream service with a candidate credential.
// A nil return accepts the credential; any error rejects it.
type UpstreamValidator interface {
	Validate(ctx context.Context, token string) error
}

// UpstreamValidatorFunc adapts a function to the UpstreamValidator interface.
type UpstreamValidatorFunc func(ctx context.Context, token string) error

func (f UpstreamValidatorFunc) Validate(ctx context.Context, token string) error {
	return f(ctx, token)
}

// UserResolver confirms that a session token's subject still exists.
type UserResolver interface {
	GetUser(ctx context.Context, id string) (*users.User, error)
}

// MiddlewareConfig holds the collaborators of the auth dispatcher.
type MiddlewareConfig struct {
	Verifier    TokenVerifier
	Users       UserResolver
	Upstream    UpstreamValidator
	Credentials *CredentialStore
	Logger      *slog.Logger
}

// Middleware creates an HTTP middleware that authenticates every request by
// one of two mutually exclusive schemes and attaches the resolved Identity
// to the request context:
//
//   - raw Oura personal access tokens, validated by a live upstream probe
//   - HS256 session tokens issued at login, validated locally
//
// Callers may declare the credential type via the X-Auth-Token-Type header;
// otherwise the token shape decides. Rejections are HTTP 401 with a JSON
// body carrying a reason code.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.Debug("missing or malformed authorization header")
				writeAuthError(w, ReasonMissingHeader)
				return
			}

			var identity *Identity
			if classifyCredential(token, r.Header.Get(TokenTypeHeader)) {
				id, err := cfg.authenticatePAT(r.Context(), token)
				if err != nil {
					logger.Info("oura credential rejected by upstream probe")
					writeAuthError(w, ReasonInvalidUpstream)
					return
				}
				identity = id
			} else {
				id, err := cfg.authenticateSession(r.Context(), token)
				if err != nil {
					logger.Debug("session token rejected", "error", err)
					writeAuthError(w, ReasonInvalidOrExpired)
					return
				}
				identity = id
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// IsUpstreamCredential reports whether a bearer token looks like a raw Oura
// personal access token rather than a signed session token.
func IsUpstreamCredential(token string) bool {
	return len(token) > patMinLength && !strings.Contains(token, sessionDelimiter)
}

// classifyCredential decides which auth branch handles a token. An explicit
// declared type wins; without one the shape heuristic applies. Returns true
// for the upstream-PAT branch.
func classifyCredential(token, declaredType string) bool {
	switch declaredType {
	case TokenTypePAT:
		return true
	case TokenTypeSession:
		return false
	}
	return IsUpstreamCredential(token)
}

// authenticatePAT validates a raw Oura credential with a live probe and
// derives a stable per-process identity for it.
func (cfg MiddlewareConfig) authenticatePAT(ctx context.Context, token string) (*Identity, error) {
	if err := cfg.Upstream.Validate(ctx, token); err != nil {
		return nil, err
	}

	subject := DeriveSubject(token)
	cfg.Credentials.Put(subject, token)

	return &Identity{
		UserID:   subject,
		Username: PATUsername,
		Email:    PATEmail,
	}, nil
}

// authenticateSession verifies a JWT session token and confirms its subject
// still exists in the user store.
func (cfg MiddlewareConfig) authenticateSession(ctx context.Context, token string) (*Identity, error) {
	claims, err := cfg.Verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := cfg.Users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	}, nil
}

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(authHeader string) (string, bool) {
	if authHeader == "" || !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", false
	}
	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", false
	}
	return token, true
}

// writeAuthError terminates the request with a structured 401 body.
func writeAuthError(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
