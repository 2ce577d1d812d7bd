// ABOUTME: Tests for the bearer credential dispatcher middleware
// ABOUTME: Covers header validation, PAT vs JWT classification, and identity derivation

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iherath/oura-mcp-remote/internal/users"
)

var httpTestSecret = []byte("http-middleware-test-secret-32b!")

// recordingVerifier tracks whether the session-token verifier was consulted.
type recordingVerifier struct {
	verifier *JWTVerifier
	calls    int
}

func (r *recordingVerifier) Verify(token string) (*Claims, error) {
	r.calls++
	return r.verifier.Verify(token)
}

// fakeUpstream validates PATs without a network.
type fakeUpstream struct {
	rejected map[string]bool
	calls    int
}

func (f *fakeUpstream) Validate(_ context.Context, token string) error {
	f.calls++
	if f.rejected[token] {
		return ErrInvalidToken
	}
	return nil
}

type middlewareFixture struct {
	verifier    *recordingVerifier
	upstream    *fakeUpstream
	credentials *CredentialStore
	store       *users.MemoryStore
	handler     http.Handler
	identity    *Identity
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()

	jwtVerifier, err := NewJWTVerifier(httpTestSecret)
	require.NoError(t, err)

	f := &middlewareFixture{
		verifier:    &recordingVerifier{verifier: jwtVerifier},
		upstream:    &fakeUpstream{rejected: make(map[string]bool)},
		credentials: NewCredentialStore(),
		store:       users.NewMemoryStore(),
	}

	mgr, err := users.NewManager(users.Config{Store: f.store, Tokens: jwtVerifier})
	require.NoError(t, err)

	mw := Middleware(MiddlewareConfig{
		Verifier:    f.verifier,
		Users:       mgr,
		Upstream:    f.upstream,
		Credentials: f.credentials,
	})

	f.handler = mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.identity = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return f
}

func (f *middlewareFixture) do(t *testing.T, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/sse", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	f.identity = nil
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeReason(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

// patToken is a 48-char alphanumeric credential with no dot.
const patToken = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrst12"

func TestMiddleware_MissingHeader(t *testing.T) {
	f := newMiddlewareFixture(t)

	for _, header := range []string{"", "Basic abc", "Bearer ", "bearer lowercase"} {
		rec := f.do(t, header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.Equal(t, ReasonMissingHeader, decodeReason(t, rec), "header %q", header)
	}
}

func TestMiddleware_PATBranch(t *testing.T) {
	t.Run("valid upstream credential is accepted", func(t *testing.T) {
		f := newMiddlewareFixture(t)

		rec := f.do(t, "Bearer "+patToken)
		require.Equal(t, http.StatusOK, rec.Code)

		require.NotNil(t, f.identity)
		assert.True(t, strings.HasPrefix(f.identity.UserID, "oura_"))
		assert.Equal(t, PATUsername, f.identity.Username)
		assert.Equal(t, PATEmail, f.identity.Email)

		// The credential is recorded under the derived subject.
		stored, ok := f.credentials.Get(f.identity.UserID)
		require.True(t, ok)
		assert.Equal(t, patToken, stored)
	})

	t.Run("session verifier is never consulted for PATs", func(t *testing.T) {
		f := newMiddlewareFixture(t)

		f.do(t, "Bearer "+patToken)
		assert.Equal(t, 1, f.upstream.calls)
		assert.Equal(t, 0, f.verifier.calls)
	})

	t.Run("repeated calls derive the same subject", func(t *testing.T) {
		f := newMiddlewareFixture(t)

		f.do(t, "Bearer "+patToken)
		first := f.identity.UserID
		f.do(t, "Bearer "+patToken)

		assert.Equal(t, first, f.identity.UserID)
		assert.Equal(t, 1, f.credentials.Len())
	})

	t.Run("upstream rejection maps to invalid_upstream_credential", func(t *testing.T) {
		f := newMiddlewareFixture(t)
		f.upstream.rejected[patToken] = true

		rec := f.do(t, "Bearer "+patToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, ReasonInvalidUpstream, decodeReason(t, rec))
	})
}

func TestMiddleware_SessionBranch(t *testing.T) {
	registerUser := func(t *testing.T, f *middlewareFixture) *users.User {
		t.Helper()
		mgr, err := users.NewManager(users.Config{Store: f.store, Tokens: f.verifier.verifier})
		require.NoError(t, err)
		user, err := mgr.Register(context.Background(), "alice", "alice@example.com", "pw", "oura-pat")
		require.NoError(t, err)
		return user
	}

	t.Run("valid token resolves the registered identity", func(t *testing.T) {
		f := newMiddlewareFixture(t)
		user := registerUser(t, f)

		token, err := f.verifier.verifier.Issue(user.ID, user.Username, user.Email, time.Hour)
		require.NoError(t, err)

		rec := f.do(t, "Bearer "+token)
		require.Equal(t, http.StatusOK, rec.Code)

		require.NotNil(t, f.identity)
		assert.Equal(t, user.ID, f.identity.UserID)
		assert.Equal(t, "alice", f.identity.Username)
		assert.Equal(t, "alice@example.com", f.identity.Email)
		assert.Zero(t, f.upstream.calls, "session tokens must not trigger upstream probes")
	})

	t.Run("expired token rejected", func(t *testing.T) {
		f := newMiddlewareFixture(t)
		user := registerUser(t, f)

		token, err := f.verifier.verifier.Issue(user.ID, user.Username, user.Email, -time.Minute)
		require.NoError(t, err)

		rec := f.do(t, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, ReasonInvalidOrExpired, decodeReason(t, rec))
	})

	t.Run("token for deleted user rejected", func(t *testing.T) {
		f := newMiddlewareFixture(t)

		token, err := f.verifier.verifier.Issue("user_ghost", "ghost", "ghost@example.com", time.Hour)
		require.NoError(t, err)

		rec := f.do(t, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, ReasonInvalidOrExpired, decodeReason(t, rec))
	})
}

func TestIsUpstreamCredential(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"long alnum token", patToken, true},
		{"jwt with dots", "aaaaaaaaaa.bbbbbbbbbb.cccccccccc", false},
		{"short token", "shorttoken", false},
		{"exactly 20 chars", strings.Repeat("a", 20), false},
		{"21 chars", strings.Repeat("a", 21), true},
		{"long token with one dot", strings.Repeat("a", 30) + "." + "b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUpstreamCredential(tt.token))
		})
	}
}

func TestClassifyCredential_DeclaredType(t *testing.T) {
	shortPAT := "shortpat" // would fall to the session branch heuristically

	tests := []struct {
		name     string
		token    string
		declared string
		wantPAT  bool
	}{
		{"declared pat overrides heuristic", shortPAT, TokenTypePAT, true},
		{"declared session overrides heuristic", patToken, TokenTypeSession, false},
		{"unknown declaration falls back", patToken, "bogus", true},
		{"no declaration falls back", shortPAT, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantPAT, classifyCredential(tt.token, tt.declared))
		})
	}
}

func TestMiddleware_DeclaredTokenTypeHeader(t *testing.T) {
	f := newMiddlewareFixture(t)

	// A short dot-free credential is heuristically a session token, but the
	// declared type routes it through the upstream probe.
	req := httptest.NewRequest(http.MethodGet, "/sse", nil)
	req.Header.Set("Authorization", "Bearer shortpat")
	req.Header.Set(TokenTypeHeader, TokenTypePAT)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.upstream.calls)
	assert.Equal(t, 0, f.verifier.calls)
}

func TestDeriveSubject_Stable(t *testing.T) {
	a := DeriveSubject(patToken)
	b := DeriveSubject(patToken)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "oura_"))

	other := DeriveSubject("a-different-credential-entirely")
	assert.NotEqual(t, a, other)
}
