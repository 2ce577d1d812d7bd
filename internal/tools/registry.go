// ABOUTME: Static registry of the six Oura tool operations exposed over MCP
// ABOUTME: Maps tool names to upstream client calls with reflected input schemas

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/invopop/jsonschema"

	"github.com/iherath/oura-mcp-remote/internal/oura"
)

// ErrUnknownTool is returned when a tool name is not in the registry.
// Call wraps it with the offending name.
var ErrUnknownTool = fmt.Errorf("unknown tool")

// DataClient is the subset of the Oura client the registry invokes.
type DataClient interface {
	GetSleep(ctx context.Context, rng oura.DateRange) (*oura.SleepData, error)
	GetReadiness(ctx context.Context, rng oura.DateRange) (*oura.ReadinessData, error)
	GetResilience(ctx context.Context, rng oura.DateRange) (*oura.ResilienceData, error)
	GetTodaySleep(ctx context.Context) (*oura.SleepData, error)
	GetTodayReadiness(ctx context.Context) (*oura.ReadinessData, error)
	GetTodayResilience(ctx context.Context) (*oura.ResilienceData, error)
}

// DateRangeArgs are the arguments accepted by the ranged tools.
// The schema is used for discovery only; fields are optional and
// unvalidated beyond JSON shape.
type DateRangeArgs struct {
	StartDate string `json:"start_date,omitempty" jsonschema:"description=Start date in ISO format (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" jsonschema:"description=End date in ISO format (YYYY-MM-DD)"`
	NextToken string `json:"next_token,omitempty" jsonschema:"description=Token for pagination"`
}

// Definition describes one tool for the discovery listing.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// handlerFunc executes one tool against the caller's Oura client.
type handlerFunc func(ctx context.Context, client DataClient, args DateRangeArgs) (any, error)

// Registry is the fixed table of tool operations. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	defs     []Definition
	handlers map[string]handlerFunc
	logger   *slog.Logger
}

// NewRegistry builds the six-entry tool table.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	rangeSchema := reflectSchema(&DateRangeArgs{})
	emptySchema := json.RawMessage(`{"type":"object","properties":{}}`)

	r := &Registry{
		logger:   logger.With("component", "tools"),
		handlers: make(map[string]handlerFunc),
	}

	add := func(name, description string, schema json.RawMessage, h handlerFunc) {
		r.defs = append(r.defs, Definition{Name: name, Description: description, InputSchema: schema})
		r.handlers[name] = h
	}

	add("get_sleep_data", "Get sleep data for a specific date range", rangeSchema,
		func(ctx context.Context, c DataClient, args DateRangeArgs) (any, error) {
			return c.GetSleep(ctx, rangeOf(args))
		})
	add("get_readiness_data", "Get readiness data for a specific date range", rangeSchema,
		func(ctx context.Context, c DataClient, args DateRangeArgs) (any, error) {
			return c.GetReadiness(ctx, rangeOf(args))
		})
	add("get_resilience_data", "Get resilience data for a specific date range", rangeSchema,
		func(ctx context.Context, c DataClient, args DateRangeArgs) (any, error) {
			return c.GetResilience(ctx, rangeOf(args))
		})
	add("get_today_sleep_data", "Get sleep data for today", emptySchema,
		func(ctx context.Context, c DataClient, _ DateRangeArgs) (any, error) {
			return c.GetTodaySleep(ctx)
		})
	add("get_today_readiness_data", "Get readiness data for today", emptySchema,
		func(ctx context.Context, c DataClient, _ DateRangeArgs) (any, error) {
			return c.GetTodayReadiness(ctx)
		})
	add("get_today_resilience_data", "Get resilience data for today", emptySchema,
		func(ctx context.Context, c DataClient, _ DateRangeArgs) (any, error) {
			return c.GetTodayResilience(ctx)
		})

	return r
}

// Definitions returns the full fixed tool listing in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.defs))
	copy(defs, r.defs)
	return defs
}

// Call resolves a tool by name and invokes it with the given raw arguments,
// returning the result as indented JSON text. Unknown names return an error
// wrapping ErrUnknownTool that echoes the name.
func (r *Registry) Call(ctx context.Context, client DataClient, name string, rawArgs json.RawMessage) (string, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	var args DateRangeArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("parsing tool arguments: %w", err)
		}
	}

	r.logger.Debug("invoking tool", "tool_name", name)

	result, err := handler(ctx, client, args)
	if err != nil {
		return "", err
	}

	text, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return string(text), nil
}

// rangeOf converts tool arguments to an upstream date range.
func rangeOf(args DateRangeArgs) oura.DateRange {
	return oura.DateRange{
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		NextToken: args.NextToken,
	}
}

// reflectSchema produces an inline JSON Schema for a tool argument struct.
func reflectSchema(v any) json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""

	raw, err := json.Marshal(schema)
	if err != nil {
		// Reflection over a plain struct cannot fail to marshal; treat as fatal.
		panic(fmt.Sprintf("tools: reflecting input schema: %v", err))
	}
	return raw
}
