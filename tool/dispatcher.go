package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/petal-labs/toolstream/schema"
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry *Registry
	Observer Observer
	Logger   *slog.Logger
}

// Dispatcher validates payloads against a tool's input schema and runs its
// handler on the single-result or streaming path.
type Dispatcher struct {
	registry *Registry
	observer Observer
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil registry becomes an empty one.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
}

// Registry returns the registry the dispatcher resolves names against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Invoke runs a single-result tool and returns its output item. Producer
// tools are refused with a *StreamingOnlyError.
func (d *Dispatcher) Invoke(ctx context.Context, name string, payload []byte) (Item, error) {
	ctx, id := ensureInvocationID(ctx)
	obs := InvocationObservation{
		InvocationID: id,
		ToolName:     name,
		Mode:         ModeInvoke,
		Started:      time.Now(),
	}

	reg, input, err := d.prepare(name, payload)
	obs.Kind = reg.Handler.Kind()
	if err == nil && obs.Kind == KindStreaming {
		err = &StreamingOnlyError{Tool: name}
	}
	if err != nil {
		d.finish(obs, err)
		return nil, err
	}

	obs.HandlerRan = true
	d.start(obs)

	item, err := runSingle(ctx, reg.Handler, input)
	if err != nil {
		err = newHandlerError(name, err)
	} else {
		obs.Items = 1
	}
	d.finish(obs, err)
	return item, err
}

// Stream starts a tool on the streaming path. Lookup and validation errors
// are returned directly; once a Stream is returned, handler failures surface
// from its Next. Single-result tools yield exactly one item, computed on the
// first pull.
func (d *Dispatcher) Stream(ctx context.Context, name string, payload []byte) (Stream, error) {
	ctx, id := ensureInvocationID(ctx)
	obs := InvocationObservation{
		InvocationID: id,
		ToolName:     name,
		Mode:         ModeStream,
		Started:      time.Now(),
	}

	reg, input, err := d.prepare(name, payload)
	obs.Kind = reg.Handler.Kind()
	if err != nil {
		d.finish(obs, err)
		return nil, err
	}

	obs.HandlerRan = true
	d.start(obs)

	handler := reg.Handler
	seq := iter.Seq2[any, error](func(yield func(any, error) bool) {
		for v, err := range handler.sequence(ctx, input) {
			if !yield(v, err) {
				return
			}
		}
	})
	return &observedStream{
		inner: newPullStream(seq),
		d:     d,
		obs:   obs,
	}, nil
}

func (d *Dispatcher) prepare(name string, payload []byte) (Registration, any, error) {
	reg, err := d.registry.Get(name)
	if err != nil {
		return Registration{}, nil, err
	}
	if diags := schema.Validate(reg.InputSchema, payload); len(diags) > 0 {
		return reg, nil, &ValidationError{Tool: name, Violations: diags}
	}
	filled, err := schema.ApplyDefaults(reg.InputSchema, payload)
	if err != nil {
		return reg, nil, fmt.Errorf("tool %q: %w", name, err)
	}
	input, err := reg.Handler.decode(filled)
	if err != nil {
		return reg, nil, &ValidationError{
			Tool: name,
			Violations: []schema.Diagnostic{{
				Field:   "$",
				Code:    schema.CodeTypeMismatch,
				Message: err.Error(),
			}},
		}
	}
	return reg, input, nil
}

func (d *Dispatcher) start(obs InvocationObservation) {
	d.logger.Debug("tool invocation started",
		"tool", obs.ToolName,
		"invocation_id", obs.InvocationID,
		"mode", obs.Mode,
		"kind", obs.Kind,
	)
	d.observer.ObserveStart(InvocationStart{
		InvocationID: obs.InvocationID,
		ToolName:     obs.ToolName,
		Mode:         obs.Mode,
		Kind:         obs.Kind,
		Started:      obs.Started,
	})
}

func (d *Dispatcher) finish(obs InvocationObservation, err error) {
	obs.Duration = time.Since(obs.Started)
	obs.Success = err == nil
	obs.ErrorKind = ErrorKind(err)

	attrs := []any{
		"tool", obs.ToolName,
		"invocation_id", obs.InvocationID,
		"mode", obs.Mode,
		"items", obs.Items,
		"duration_ms", obs.Duration.Milliseconds(),
	}
	switch obs.ErrorKind {
	case "":
		d.logger.Debug("tool invocation completed", attrs...)
	case ErrorKindHandler, ErrorKindInternal:
		d.logger.Warn("tool invocation failed", append(attrs, "error_kind", obs.ErrorKind, "error", err)...)
	default:
		d.logger.Info("tool invocation rejected", append(attrs, "error_kind", obs.ErrorKind, "error", err)...)
	}
	d.observer.ObserveFinish(obs)
}

func runSingle(ctx context.Context, h Handler, input any) (item Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			item, err = nil, panicError{value: r}
		}
	}()
	v, err := h.single(ctx, input)
	if err != nil {
		return nil, err
	}
	return normalizeItem(v)
}

// observedStream reports the outcome of a streaming invocation exactly once.
type observedStream struct {
	inner    *pullStream
	d        *Dispatcher
	obs      InvocationObservation
	finished bool
}

func (s *observedStream) Next(ctx context.Context) (Item, error) {
	item, err := s.inner.Next(ctx)
	switch {
	case err == nil:
		s.obs.Items++
		return item, nil
	case errors.Is(err, io.EOF):
		s.finish(nil)
		return nil, io.EOF
	case errors.Is(err, ErrStreamClosed):
		return nil, err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		s.finish(err)
		return nil, err
	default:
		herr := newHandlerError(s.obs.ToolName, err)
		s.finish(herr)
		return nil, herr
	}
}

// Close stops the producer. A stream closed before it ended is recorded as
// cancelled.
func (s *observedStream) Close() error {
	err := s.inner.Close()
	s.finish(context.Canceled)
	return err
}

func (s *observedStream) finish(err error) {
	if s.finished {
		return
	}
	s.finished = true
	s.d.finish(s.obs, err)
}
