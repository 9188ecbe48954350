package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petal-labs/toolstream/schema"
)

// Error kinds reported to clients in the error_kind field.
const (
	ErrorKindUnknownTool       = "unknown_tool"
	ErrorKindDuplicateTool     = "duplicate_tool"
	ErrorKindInvalidDefinition = "invalid_definition"
	ErrorKindValidation        = "validation_error"
	ErrorKindStreamingOnly     = "streaming_only"
	ErrorKindHandler           = "handler_error"
	ErrorKindCancelled         = "cancelled"
	ErrorKindInternal          = "internal_error"
)

// ErrRegistrySealed is returned when registering after the registry has
// been sealed for serving.
var ErrRegistrySealed = errors.New("tool: registry is sealed")

// UnknownToolError reports a lookup of a name that was never registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// DuplicateToolError reports a second registration under an existing name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// InvalidDefinitionError reports a registration that cannot be served.
type InvalidDefinitionError struct {
	Name   string
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("tool %q: invalid definition: %s", e.Name, e.Reason)
}

// ValidationError lists every way a payload failed the tool's input schema.
type ValidationError struct {
	Tool       string
	Violations []schema.Diagnostic
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("tool %q: invalid input: %s", e.Tool, strings.Join(parts, "; "))
}

// StreamingOnlyError reports a producer handler called through the
// single-result path.
type StreamingOnlyError struct {
	Tool string
}

func (e *StreamingOnlyError) Error() string {
	return fmt.Sprintf("tool %q produces a stream; use the streaming endpoint", e.Tool)
}

// HandlerError wraps a failure raised by a handler after its input was
// validated. Message carries the original failure text.
type HandlerError struct {
	Tool    string
	Message string
	Cause   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Message)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

func newHandlerError(toolName string, cause error) *HandlerError {
	msg := "handler failed"
	if cause != nil {
		msg = strings.TrimSpace(cause.Error())
	}
	return &HandlerError{Tool: toolName, Message: msg, Cause: cause}
}

// panicError carries a recovered handler panic.
type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// ErrorKind maps err onto the client-facing error kind.
func ErrorKind(err error) string {
	var (
		unknown   *UnknownToolError
		duplicate *DuplicateToolError
		invalid   *InvalidDefinitionError
		validate  *ValidationError
		streaming *StreamingOnlyError
		handler   *HandlerError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unknown):
		return ErrorKindUnknownTool
	case errors.As(err, &duplicate):
		return ErrorKindDuplicateTool
	case errors.As(err, &invalid):
		return ErrorKindInvalidDefinition
	case errors.As(err, &validate):
		return ErrorKindValidation
	case errors.As(err, &streaming):
		return ErrorKindStreamingOnly
	case errors.As(err, &handler):
		return ErrorKindHandler
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorKindCancelled
	default:
		return ErrorKindInternal
	}
}
