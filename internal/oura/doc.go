// Package oura wraps the Oura v2 usercollection HTTP API.
//
// The client performs stateless, time-ranged reads of the daily sleep,
// readiness, and resilience document collections. Failures carry the
// upstream status code via *APIError so callers can distinguish a rejected
// credential (401) from a missing document or upstream outage.
//
// Validate implements the credential probe used during authentication: a
// short recent-history read where only a 401 marks the token invalid and
// every other outcome is treated as "assume valid".
package oura
