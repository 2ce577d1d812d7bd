// ABOUTME: User registration, password verification, and session token issuance
// ABOUTME: Wraps a Store with bcrypt hashing and JWT creation via a TokenIssuer

package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the work factor used for stored password hashes.
const bcryptCost = 12

// ErrInvalidCredentials is returned when email or password verification fails.
// The message never distinguishes the two cases.
var ErrInvalidCredentials = errors.New("invalid email or password")

// TokenIssuer mints signed session tokens for authenticated users.
// Implemented by auth.JWTVerifier.
type TokenIssuer interface {
	Issue(userID, username, email string, ttl time.Duration) (string, error)
}

// Config holds configuration for the user manager.
type Config struct {
	Store    Store
	Tokens   TokenIssuer
	TokenTTL time.Duration
	Logger   *slog.Logger
}

// Manager coordinates user registration and authentication against a Store.
type Manager struct {
	store    Store
	tokens   TokenIssuer
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewManager creates a user manager with the given configuration.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer is required")
	}

	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:    cfg.Store,
		tokens:   cfg.Tokens,
		tokenTTL: ttl,
		logger:   logger.With("component", "users"),
	}, nil
}

// Register creates a new user with a bcrypt-hashed password.
// Returns ErrEmailExists or ErrUsernameExists on uniqueness conflicts.
func (m *Manager) Register(ctx context.Context, username, email, password, ouraToken string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:           "user_" + uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		OuraToken:    ouraToken,
		CreatedAt:    time.Now().UTC(),
	}

	if err := m.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	m.logger.Info("registered user", "user_id", user.ID, "username", username)
	return user, nil
}

// Authenticate verifies the email/password pair and returns a signed session
// token. Returns ErrInvalidCredentials on any verification failure.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (string, error) {
	user, err := m.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := m.tokens.Issue(user.ID, user.Username, user.Email, m.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}

// GetUser retrieves a user by ID.
func (m *Manager) GetUser(ctx context.Context, id string) (*User, error) {
	return m.store.GetUserByID(ctx, id)
}

// UpdateOuraToken rotates the stored Oura credential for a user.
func (m *Manager) UpdateOuraToken(ctx context.Context, userID, ouraToken string) error {
	return m.store.UpdateOuraToken(ctx, userID, ouraToken)
}

// SeedTestUser creates a development user if the store is empty.
// The Oura credential comes from TEST_OURA_TOKEN when set.
func (m *Manager) SeedTestUser(ctx context.Context, ouraToken string) error {
	count, err := m.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		return nil
	}

	if ouraToken == "" {
		ouraToken = "test-token"
	}

	_, err = m.Register(ctx, "testuser", "test@example.com", "password123", ouraToken)
	if err != nil && !errors.Is(err, ErrEmailExists) && !errors.Is(err, ErrUsernameExists) {
		return err
	}

	m.logger.Info("seeded test user", "email", "test@example.com")
	return nil
}
