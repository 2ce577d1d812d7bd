// ABOUTME: Package doc for gateway orchestration
// ABOUTME: Describes route surface and component wiring

// Package gateway wires the configuration, user store, auth middleware,
// tool registry, and MCP streaming server into a single HTTP server and
// manages its lifecycle.
//
// The public surface is small: liveness and discovery endpoints, account
// registration and login, and three auth-gated streaming mounts that
// differ only in wire framing.
package gateway
