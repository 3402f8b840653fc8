package stress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// maxViolations caps the number of distinct violation messages kept per
// scenario. Further violations are still counted.
const maxViolations = 32

// Collector accumulates the outcome of one scenario.
//
// Counters are atomics so workers can record operations without
// serializing on the collector. Violations and the queue high-water mark
// are guarded by mu, a go-deadlock mutex, so a worker stuck while
// reporting is itself reported once a watchdog timeout is configured.
//
// Thread Safety: All methods are safe for concurrent calls.
type Collector struct {
	ops       atomic.Int64
	timeouts  atomic.Int64
	cancelled atomic.Int64

	mu         deadlock.Mutex
	violations []string
	seen       map[string]struct{}
	total      int64
	maxQueue   int
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]struct{})}
}

// Op records one completed operation.
func (c *Collector) Op() {
	c.ops.Add(1)
}

// Timeout records an acquisition that gave up after its timeout.
func (c *Collector) Timeout() {
	c.timeouts.Add(1)
}

// Cancelled records an acquisition abandoned because its context ended.
func (c *Collector) Cancelled() {
	c.cancelled.Add(1)
}

// Violation records a safety violation. Identical messages are kept once.
func (c *Collector) Violation(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	if _, dup := c.seen[msg]; dup || len(c.violations) >= maxViolations {
		return
	}
	c.seen[msg] = struct{}{}
	c.violations = append(c.violations, msg)
}

// ObserveQueue records a sampled wait queue length.
func (c *Collector) ObserveQueue(n int) {
	c.mu.Lock()
	c.maxQueue = max(c.maxQueue, n)
	c.mu.Unlock()
}

// Violations returns the number of violations recorded so far, duplicates
// included.
func (c *Collector) Violations() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Result snapshots the collector into a ScenarioResult.
func (c *Collector) Result(name string, cfg Config, elapsed time.Duration) ScenarioResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ScenarioResult{
		Name:           name,
		Goroutines:     cfg.Goroutines,
		Iterations:     cfg.Iterations,
		Ops:            c.ops.Load(),
		Timeouts:       c.timeouts.Load(),
		Cancelled:      c.cancelled.Load(),
		MaxQueueLength: c.maxQueue,
		ViolationCount: c.total,
		Violations:     append([]string(nil), c.violations...),
		Duration:       elapsed,
	}
}
