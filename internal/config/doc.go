// Package config handles configuration loading for oura-gateway.
//
// Configuration is loaded from YAML files with ${VAR_NAME} environment
// variable expansion and Go duration-string parsing. Load() applies
// defaults for optional fields and validates required ones (jwt secret,
// database path).
//
// Example:
//
//	server:
//	  http_addr: "0.0.0.0:3000"
//	auth:
//	  jwt_secret: "${OURA_GATEWAY_JWT_SECRET}"
//	  token_ttl: "24h"
//	database:
//	  path: "/var/lib/oura-gateway/users.db"
//	mcp:
//	  heartbeat_interval: "30s"
//	logging:
//	  level: "info"
//	  format: "text"
package config
