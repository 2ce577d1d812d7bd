// Package auth provides authentication for oura-gateway.
//
// # Credential Schemes
//
// Every streaming request carries "Authorization: Bearer <token>" with one of
// two disjoint credential shapes:
//
//   - Oura personal access tokens: long opaque strings with no '.' separator.
//     Validated by a live probe against the Oura API; only an upstream 401
//     rejects the credential. A stable per-process subject is derived from
//     the token so repeated connections share one identity.
//
//   - JWT session tokens: issued at login, signed with HS256 using the
//     configured jwt_secret, expiring after the configured TTL. The subject
//     must still exist in the user store.
//
// The shape is sniffed heuristically (length plus delimiter absence). JWTs
// always contain '.' so they cannot be misrouted to the upstream probe.
//
// # Identity Propagation
//
// Middleware attaches the resolved Identity to the request context; handlers
// retrieve it with IdentityFromContext. The CredentialStore maps derived
// subjects to their Oura tokens for the lifetime of the process and is the
// only mutable state shared across connections.
package auth
