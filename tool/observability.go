package tool

import (
	"time"
)

// Mode is the delivery path an invocation took.
type Mode string

const (
	ModeInvoke Mode = "invoke"
	ModeStream Mode = "stream"
)

// InvocationStart is emitted once a validated payload is handed to a handler.
type InvocationStart struct {
	InvocationID string
	ToolName     string
	Mode         Mode
	Kind         Kind
	Started      time.Time
}

// InvocationObservation captures one invocation outcome. HandlerRan is false
// for requests rejected before a handler was started; those never had a
// matching InvocationStart.
type InvocationObservation struct {
	InvocationID string
	ToolName     string
	Mode         Mode
	Kind         Kind
	Started      time.Time
	Duration     time.Duration
	Items        int
	HandlerRan   bool
	Success      bool
	ErrorKind    string
}

// Observer receives invocation lifecycle events. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveStart(start InvocationStart)
	ObserveFinish(observation InvocationObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveStart(InvocationStart)        {}
func (noopObserver) ObserveFinish(InvocationObservation) {}

// MultiObserver fans each event out to every non-nil observer in order.
type MultiObserver []Observer

// NewMultiObserver drops nil entries.
func NewMultiObserver(observers ...Observer) MultiObserver {
	out := make(MultiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m MultiObserver) ObserveStart(start InvocationStart) {
	for _, o := range m {
		o.ObserveStart(start)
	}
}

func (m MultiObserver) ObserveFinish(observation InvocationObservation) {
	for _, o := range m {
		o.ObserveFinish(observation)
	}
}
