package coalesce

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/log"
	"github.com/jonboulle/clockwork"
)

// DefaultQuietPeriod is used when New is given a non-positive quiet period.
const DefaultQuietPeriod = 1 * time.Second

// Summary describes one coalesced burst.
type Summary struct {
	// Resource is the feed of the representative event.
	Resource string

	// Count is the number of events observed since the previous summary.
	Count int

	// Representative is the most recently observed event.
	Representative feed.ChangeEvent

	// First and Last are the receipt times of the first and last event.
	First time.Time
	Last  time.Time
}

// Window returns the time between the first and the last observed event.
func (s Summary) Window() time.Duration {
	return s.Last.Sub(s.First)
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithClock sets the clock driving the quiet period timer.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coalescer) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coalescer) {
		c.logger = logger
	}
}

// WithProtocolLogger sets the trace logger. id is recorded as the
// subscription ID of every summary event.
func WithProtocolLogger(logger log.Logger, id string) Option {
	return func(c *Coalescer) {
		c.protocolLogger = logger
		c.traceID = id
	}
}

// Coalescer debounces observed events into summaries.
// It is safe for concurrent use.
type Coalescer struct {
	quiet     time.Duration
	onSummary func(Summary)

	clock          clockwork.Clock
	logger         *slog.Logger
	protocolLogger log.Logger
	traceID        string

	mu         sync.Mutex
	count      int
	last       feed.ChangeEvent
	firstAt    time.Time
	lastAt     time.Time
	timer      clockwork.Timer
	generation uint64
	stopped    bool
}

// New creates a Coalescer that calls onSummary after each quiet period.
// onSummary runs on the timer goroutine, never while the Coalescer holds
// its lock.
func New(quiet time.Duration, onSummary func(Summary), opts ...Option) *Coalescer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	c := &Coalescer{
		quiet:     quiet,
		onSummary: onSummary,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QuietPeriod returns the configured quiet period.
func (c *Coalescer) QuietPeriod() time.Duration {
	return c.quiet
}

// Observe counts ev and restarts the quiet period.
// Calls after Stop are ignored.
func (c *Coalescer) Observe(ev feed.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	at := ev.ReceivedAt
	if at.IsZero() {
		at = c.clock.Now()
	}
	if c.count == 0 {
		c.firstAt = at
	}
	c.count++
	c.last = ev
	c.lastAt = at

	if c.timer != nil {
		c.timer.Stop()
	}
	c.generation++
	gen := c.generation
	c.timer = c.clock.AfterFunc(c.quiet, func() {
		c.fire(gen)
	})
}

// Pending returns the number of events waiting for the next summary.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Flush delivers the pending summary immediately, without waiting for the
// quiet period. It returns false if nothing was pending.
func (c *Coalescer) Flush() bool {
	c.mu.Lock()
	if c.stopped || c.count == 0 {
		c.mu.Unlock()
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	s := c.takeLocked()
	c.mu.Unlock()

	c.deliver(s)
	return true
}

// Stop cancels any pending quiet period timer and discards the pending
// count. After Stop returns no summary is started; Observe and Flush become
// no-ops. Stop is idempotent.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	if c.count > 0 && c.logger != nil {
		c.logger.Debug("Coalescer: stopped with pending events",
			"resource", c.last.Resource,
			"pending", c.count)
	}
	c.count = 0
}

// Stopped reports whether Stop has been called.
func (c *Coalescer) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Coalescer) fire(gen uint64) {
	c.mu.Lock()
	// A newer Observe, Flush or Stop superseded this timer.
	if c.stopped || gen != c.generation || c.count == 0 {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	s := c.takeLocked()
	c.mu.Unlock()

	c.deliver(s)
}

// takeLocked builds the summary and resets the counter.
func (c *Coalescer) takeLocked() Summary {
	s := Summary{
		Resource:       c.last.Resource,
		Count:          c.count,
		Representative: c.last,
		First:          c.firstAt,
		Last:           c.lastAt,
	}
	c.count = 0
	c.last = feed.ChangeEvent{}
	c.firstAt = time.Time{}
	c.lastAt = time.Time{}
	return s
}

func (c *Coalescer) deliver(s Summary) {
	if c.logger != nil {
		c.logger.Debug("Coalescer: summary",
			"resource", s.Resource,
			"count", s.Count,
			"window", s.Window())
	}
	if c.protocolLogger != nil {
		c.protocolLogger.Log(log.Event{
			Timestamp:      c.clock.Now(),
			SubscriptionID: c.traceID,
			Resource:       s.Resource,
			Layer:          log.LayerCoalescer,
			Category:       log.CategorySummary,
			Summary: &log.SummaryEvent{
				Count:              s.Count,
				RepresentativeKind: s.Representative.Kind.String(),
				Window:             s.Window(),
			},
		})
	}
	if c.onSummary != nil {
		c.onSummary(s)
	}
}
