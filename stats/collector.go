// Package stats keeps in-process invocation counters and logs periodic
// summaries of them.
package stats

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petal-labs/toolstream/tool"
)

// Collector is a tool.Observer that counts invocations per tool and tracks
// how many are running right now.
type Collector struct {
	inFlight atomic.Int64

	mu    sync.Mutex
	tools map[string]*toolCounters
}

type toolCounters struct {
	invocations int64
	failures    int64
	rejected    int64
	items       int64
	latency     time.Duration
	errorKinds  map[string]int64
}

// ToolStats is a point-in-time view of one tool's counters. Rejected counts
// requests refused before the handler ran; they are not in Invocations.
type ToolStats struct {
	Name        string           `json:"name"`
	Invocations int64            `json:"invocations"`
	Failures    int64            `json:"failures"`
	Rejected    int64            `json:"rejected"`
	Items       int64            `json:"items"`
	MeanLatency time.Duration    `json:"mean_latency_ns"`
	ErrorKinds  map[string]int64 `json:"error_kinds,omitempty"`
}

// Snapshot is a point-in-time view of every counter.
type Snapshot struct {
	InFlight    int64       `json:"in_flight"`
	Invocations int64       `json:"invocations"`
	Failures    int64       `json:"failures"`
	Rejected    int64       `json:"rejected"`
	Items       int64       `json:"items"`
	Tools       []ToolStats `json:"tools"`
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{tools: make(map[string]*toolCounters)}
}

// ObserveStart implements tool.Observer.
func (c *Collector) ObserveStart(tool.InvocationStart) {
	c.inFlight.Add(1)
}

// ObserveFinish implements tool.Observer.
func (c *Collector) ObserveFinish(obs tool.InvocationObservation) {
	if obs.HandlerRan {
		c.inFlight.Add(-1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	counters, ok := c.tools[obs.ToolName]
	if !ok {
		counters = &toolCounters{errorKinds: make(map[string]int64)}
		c.tools[obs.ToolName] = counters
	}
	if !obs.HandlerRan {
		counters.rejected++
		counters.errorKinds[obs.ErrorKind]++
		return
	}
	counters.invocations++
	counters.items += int64(obs.Items)
	counters.latency += obs.Duration
	if !obs.Success {
		counters.failures++
		counters.errorKinds[obs.ErrorKind]++
	}
}

// InFlight returns the number of invocations whose handler is running.
func (c *Collector) InFlight() int64 {
	return c.inFlight.Load()
}

// Snapshot copies the current counters, tools sorted by name.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		InFlight: c.inFlight.Load(),
		Tools:    make([]ToolStats, 0, len(c.tools)),
	}
	for name, counters := range c.tools {
		ts := ToolStats{
			Name:        name,
			Invocations: counters.invocations,
			Failures:    counters.failures,
			Rejected:    counters.rejected,
			Items:       counters.items,
		}
		if counters.invocations > 0 {
			ts.MeanLatency = counters.latency / time.Duration(counters.invocations)
		}
		if len(counters.errorKinds) > 0 {
			ts.ErrorKinds = make(map[string]int64, len(counters.errorKinds))
			for kind, n := range counters.errorKinds {
				ts.ErrorKinds[kind] = n
			}
		}
		snap.Invocations += ts.Invocations
		snap.Failures += ts.Failures
		snap.Rejected += ts.Rejected
		snap.Items += ts.Items
		snap.Tools = append(snap.Tools, ts)
	}
	slices.SortFunc(snap.Tools, func(a, b ToolStats) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return snap
}
