package server

import (
	"github.com/invopop/jsonschema"
)

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Health is the body of GET /health.
type Health struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ToolCount     int     `json:"tool_count"`
	InFlight      int64   `json:"in_flight"`
}

// ToolInfo describes one tool in GET /tools.
type ToolInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// ToolList is the body of GET /tools.
type ToolList struct {
	Tools []ToolInfo `json:"tools"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
}

// ErrorKindPayloadTooLarge is reported when a request body exceeds the limit.
const ErrorKindPayloadTooLarge = "payload_too_large"
