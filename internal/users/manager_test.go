// ABOUTME: Tests for user registration and authentication via the Manager
// ABOUTME: Uses the in-memory store and a fake token issuer

package users

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIssuer records issued tokens without real signing.
type fakeIssuer struct {
	issued []string
}

func (f *fakeIssuer) Issue(userID, username, email string, ttl time.Duration) (string, error) {
	token := fmt.Sprintf("token-for-%s-%s", userID, username)
	f.issued = append(f.issued, token)
	return token, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeIssuer) {
	t.Helper()
	issuer := &fakeIssuer{}
	m, err := NewManager(Config{
		Store:  NewMemoryStore(),
		Tokens: issuer,
	})
	require.NoError(t, err)
	return m, issuer
}

func TestNewManager_RequiresStoreAndIssuer(t *testing.T) {
	_, err := NewManager(Config{Tokens: &fakeIssuer{}})
	assert.Error(t, err)

	_, err = NewManager(Config{Store: NewMemoryStore()})
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	user, err := m.Register(ctx, "alice", "alice@example.com", "s3cret", "oura-pat")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "oura-pat", user.OuraToken)
	assert.NotEqual(t, "s3cret", user.PasswordHash, "password must not be stored in the clear")

	t.Run("duplicate email rejected", func(t *testing.T) {
		_, err := m.Register(ctx, "alice2", "alice@example.com", "pw", "tok")
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		_, err := m.Register(ctx, "alice", "other@example.com", "pw", "tok")
		assert.ErrorIs(t, err, ErrUsernameExists)
	})
}

func TestAuthenticate(t *testing.T) {
	m, issuer := newTestManager(t)
	ctx := context.Background()

	user, err := m.Register(ctx, "bob", "bob@example.com", "hunter2", "oura-pat")
	require.NoError(t, err)

	t.Run("valid credentials issue a token", func(t *testing.T) {
		token, err := m.Authenticate(ctx, "bob@example.com", "hunter2")
		require.NoError(t, err)
		assert.Contains(t, token, user.ID)
		assert.Len(t, issuer.issued, 1)
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		_, err := m.Authenticate(ctx, "bob@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email rejected with same error", func(t *testing.T) {
		_, err := m.Authenticate(ctx, "nobody@example.com", "hunter2")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestUpdateOuraToken(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	user, err := m.Register(ctx, "carol", "carol@example.com", "pw", "old-token")
	require.NoError(t, err)

	require.NoError(t, m.UpdateOuraToken(ctx, user.ID, "new-token"))

	got, err := m.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-token", got.OuraToken)

	assert.ErrorIs(t, m.UpdateOuraToken(ctx, "missing", "tok"), ErrNotFound)
}

func TestSeedTestUser(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SeedTestUser(ctx, "seed-token"))

	user, err := m.store.GetUserByEmail(ctx, "test@example.com")
	require.NoError(t, err)
	assert.Equal(t, "testuser", user.Username)
	assert.Equal(t, "seed-token", user.OuraToken)

	// Seeding is a no-op once any user exists.
	require.NoError(t, m.SeedTestUser(ctx, "other-token"))
	again, err := m.store.GetUserByEmail(ctx, "test@example.com")
	require.NoError(t, err)
	assert.Equal(t, "seed-token", again.OuraToken)
}
