// ABOUTME: Package doc for the MCP streaming layer
// ABOUTME: Explains session model, framing, and ordering guarantees

// Package mcp implements the Model Context Protocol server side over
// long-lived HTTP connections.
//
// Each authenticated HTTP request becomes one session. The response is
// held open for the life of the connection and carries JSON-RPC 2.0
// responses plus periodic heartbeat frames, encoded either as
// newline-delimited JSON or as Server-Sent Events depending on the
// endpoint. Inbound messages arrive framed in the request body and are
// processed strictly in arrival order; independent sessions proceed
// concurrently.
//
// The server holds no upstream credentials itself. Tool calls resolve the
// caller's Oura token through a CredentialSource and build the upstream
// client lazily on first use.
package mcp
