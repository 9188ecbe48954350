// Package tool holds the tool registry and the dispatcher that validates
// payloads, runs handlers and normalizes their output.
//
// A handler is one of two variants fixed at registration time:
//
//   - Single: returns exactly one output item.
//   - Streaming: produces a sequence of items as an iter.Seq2, possibly
//     suspending between them. The dispatcher consumes it with iter.Pull2,
//     so the producer only advances when the caller asks for the next item.
package tool

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/invopop/jsonschema"

	"github.com/petal-labs/toolstream/schema"
)

// Kind tags a handler as single-result or producer-shaped.
type Kind string

const (
	KindSingle    Kind = "single"
	KindStreaming Kind = "streaming"
)

// Item is one structured output record.
type Item = map[string]any

// SingleFunc handles one invocation with a decoded input and returns a value
// that marshals to a JSON object.
type SingleFunc[In any] func(ctx context.Context, in In) (any, error)

// StreamFunc returns the producer for one invocation. Yield (item, nil) for
// each output and (nil, err) to fail the stream. Producers must honour ctx
// while suspended and should release resources in deferred calls; those run
// when the consumer stops pulling.
type StreamFunc[In any] func(ctx context.Context, in In) iter.Seq2[any, error]

// Handler is the tagged handler variant stored in a Registration.
type Handler struct {
	kind    Kind
	decode  func(raw []byte) (any, error)
	single  func(ctx context.Context, in any) (any, error)
	produce func(ctx context.Context, in any) iter.Seq2[any, error]
}

// Single wraps fn as a single-result handler.
func Single[In any](fn SingleFunc[In]) Handler {
	if fn == nil {
		return Handler{}
	}
	return Handler{
		kind:   KindSingle,
		decode: decodeInput[In],
		single: func(ctx context.Context, in any) (any, error) {
			return fn(ctx, in.(In))
		},
	}
}

// Streaming wraps fn as a producer handler.
func Streaming[In any](fn StreamFunc[In]) Handler {
	if fn == nil {
		return Handler{}
	}
	return Handler{
		kind:   KindStreaming,
		decode: decodeInput[In],
		produce: func(ctx context.Context, in any) iter.Seq2[any, error] {
			return fn(ctx, in.(In))
		},
	}
}

// Kind reports the handler variant; the zero Handler reports "".
func (h Handler) Kind() Kind { return h.kind }

func (h Handler) valid() bool {
	switch h.kind {
	case KindSingle:
		return h.single != nil && h.decode != nil
	case KindStreaming:
		return h.produce != nil && h.decode != nil
	default:
		return false
	}
}

// sequence presents either variant as a producer. A single-result handler
// becomes a one-item sequence that runs on the first pull.
func (h Handler) sequence(ctx context.Context, in any) iter.Seq2[any, error] {
	if h.kind == KindStreaming {
		seq := h.produce(ctx, in)
		if seq == nil {
			return func(func(any, error) bool) {}
		}
		return seq
	}
	return func(yield func(any, error) bool) {
		yield(h.single(ctx, in))
	}
}

func decodeInput[In any](raw []byte) (any, error) {
	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	return in, nil
}

// Registration is the record the registry keeps for one tool.
type Registration struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler
}

// NewSingle builds a single-result registration whose input schema is
// reflected from In.
func NewSingle[In any](name, description string, fn SingleFunc[In]) Registration {
	return Registration{
		Name:        name,
		Description: description,
		InputSchema: schema.Reflect[In](),
		Handler:     Single(fn),
	}
}

// NewStreaming builds a producer registration whose input schema is
// reflected from In.
func NewStreaming[In any](name, description string, fn StreamFunc[In]) Registration {
	return Registration{
		Name:        name,
		Description: description,
		InputSchema: schema.Reflect[In](),
		Handler:     Streaming(fn),
	}
}
