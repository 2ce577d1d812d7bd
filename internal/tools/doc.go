// ABOUTME: Package doc for the tool registry
// ABOUTME: Describes the fixed tool table and schema generation

// Package tools defines the fixed table of operations exposed to MCP
// clients. Six tools map onto the Oura daily sleep, readiness, and
// resilience endpoints, in ranged and today-only variants. Input schemas
// for the ranged tools are reflected from their argument struct.
package tools
