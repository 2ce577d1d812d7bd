// ABOUTME: Package doc for user accounts and credentials
// ABOUTME: Describes store, manager, and password handling

// Package users manages registered accounts: bcrypt password verification,
// session token issuance through an injected TokenIssuer, and storage of
// each user's Oura credential.
//
// Store is the persistence interface; SQLiteStore is the production
// implementation and MemoryStore backs tests.
package users
