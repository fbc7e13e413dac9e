package telemetry

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// Counters keeps in-memory dispatch totals for the metrics endpoint.
//
// Thread Safety: All methods are safe for concurrent use.
type Counters struct {
	total   atomic.Uint64
	failed  atomic.Uint64
	proxied atomic.Uint64

	mu        sync.Mutex
	byCommand map[string]*commandStats
}

type commandStats struct {
	count      uint64
	failed     uint64
	totalNanos int64
	maxNanos   int64
}

// CommandStats is the exported view of one command's counters.
type CommandStats struct {
	Command      string  `json:"command"`
	Count        uint64  `json:"count"`
	Failed       uint64  `json:"failed"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	MaxLatencyMS float64 `json:"max_latency_ms"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Total    uint64         `json:"total"`
	Failed   uint64         `json:"failed"`
	Proxied  uint64         `json:"proxied"`
	Commands []CommandStats `json:"commands"`
}

// NewCounters creates empty counters.
func NewCounters() *Counters {
	return &Counters{byCommand: make(map[string]*commandStats)}
}

// CommandDispatched implements jsonwp.Observer.
func (c *Counters) CommandDispatched(_ context.Context, ev jsonwp.CommandEvent) {
	failed := ev.HTTPStatus < 200 || ev.HTTPStatus > 299

	c.total.Add(1)
	if failed {
		c.failed.Add(1)
	}
	if ev.Proxied {
		c.proxied.Add(1)
	}

	name := ev.Command
	if name == "" {
		name = "unknown"
	}
	nanos := ev.Duration.Nanoseconds()

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byCommand[name]
	if !ok {
		s = &commandStats{}
		c.byCommand[name] = s
	}
	s.count++
	if failed {
		s.failed++
	}
	s.totalNanos += nanos
	if nanos > s.maxNanos {
		s.maxNanos = nanos
	}
}

// Snapshot returns the current counters, commands sorted by name.
func (c *Counters) Snapshot() Snapshot {
	snap := Snapshot{
		Total:   c.total.Load(),
		Failed:  c.failed.Load(),
		Proxied: c.proxied.Load(),
	}

	c.mu.Lock()
	snap.Commands = make([]CommandStats, 0, len(c.byCommand))
	for name, s := range c.byCommand {
		cs := CommandStats{
			Command:      name,
			Count:        s.count,
			Failed:       s.failed,
			MaxLatencyMS: float64(s.maxNanos) / 1e6,
		}
		if s.count > 0 {
			cs.AvgLatencyMS = float64(s.totalNanos) / float64(s.count) / 1e6
		}
		snap.Commands = append(snap.Commands, cs)
	}
	c.mu.Unlock()

	sort.Slice(snap.Commands, func(i, j int) bool {
		return snap.Commands[i].Command < snap.Commands[j].Command
	})
	return snap
}
