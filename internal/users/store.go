// ABOUTME: User data types and the Store interface for registration persistence
// ABOUTME: Defines User struct and sentinel errors shared by SQLite and memory backends

package users

import (
	"context"
	"errors"
	"time"
)

// Store errors
var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("user with this email already exists")
	ErrUsernameExists = errors.New("username already taken")
)

// User represents a registered gateway user and their stored Oura credential.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	OuraToken    string
	CreatedAt    time.Time
}

// Store defines the interface for user persistence
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateOuraToken(ctx context.Context, id, ouraToken string) error
	CountUsers(ctx context.Context) (int, error)
	Close() error
}
