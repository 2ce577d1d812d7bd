// ABOUTME: Credential store mapping subject identifiers to Oura access tokens
// ABOUTME: Derives stable per-process identities for direct PAT callers

package auth

import (
	"encoding/base64"
	"sync"
)

// Names attached to identities derived from a raw Oura credential.
// These callers never registered, so there is no real profile to report.
const (
	PATUsername = "oura_user"
	PATEmail    = "oura_user@example.com"
)

// CredentialStore maps subject identifiers to Oura access tokens for the
// lifetime of the process. Entries are created when a direct PAT caller first
// authenticates and updated on rotation; they are never removed.
type CredentialStore struct {
	mu     sync.RWMutex
	tokens map[string]string // subject -> oura access token
}

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{tokens: make(map[string]string)}
}

// Put records the Oura token for a subject, replacing any previous value.
func (s *CredentialStore) Put(subject, token string) {
	s.mu.Lock()
	s.tokens[subject] = token
	s.mu.Unlock()
}

// Get returns the Oura token for a subject, or false if none is recorded.
func (s *CredentialStore) Get(subject string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[subject]
	return token, ok
}

// Len returns the number of recorded credentials (for monitoring).
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// DeriveSubject maps a raw Oura credential to a stable subject identifier.
// The same credential always yields the same subject within a process, so
// repeated connections reuse one identity and one credential-store entry.
func DeriveSubject(token string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(token))
	if len(encoded) > 10 {
		encoded = encoded[:10]
	}
	return "oura_" + encoded
}
