package subscription

import (
	"sync"
	"time"

	"github.com/fundingarb/livesync/pkg/coalesce"
	"github.com/fundingarb/livesync/pkg/connection"
	"github.com/fundingarb/livesync/pkg/feed"
)

// Handle is the application's view of one subscription.
type Handle struct {
	id        string
	manager   *Manager
	sub       *Subscription
	coalescer *coalesce.Coalescer
	coalesced feed.EventMask

	mu        sync.RWMutex
	callbacks Callbacks
	watchers  map[int]chan StatusChange
	nextWatch int
	done      bool
}

// ID returns the handle ID.
func (h *Handle) ID() string {
	return h.id
}

// Resource returns the subscribed feed.
func (h *Handle) Resource() string {
	return h.sub.cfg.Resource
}

// Config returns the effective subscription config.
func (h *Handle) Config() Config {
	return h.sub.Config()
}

// Status returns the current connection status.
func (h *Handle) Status() connection.Status {
	return h.sub.Status()
}

// LastEventAt returns the receipt time of the last event, or zero.
func (h *Handle) LastEventAt() time.Time {
	return h.sub.LastEventAt()
}

// LastError returns the most recent channel error.
func (h *Handle) LastError() error {
	return h.sub.LastError()
}

// Attempts returns the consecutive failure count.
func (h *Handle) Attempts() int {
	return h.sub.Attempts()
}

// Dropped returns the number of malformed payloads dropped.
func (h *Handle) Dropped() int {
	return h.sub.Dropped()
}

// Received returns the number of accepted events.
func (h *Handle) Received() int {
	return h.sub.Received()
}

// Indicator returns the connectivity label for display.
func (h *Handle) Indicator() string {
	return connection.Indicator(h.sub.Status(), h.sub.LastEventAt())
}

// Coalescer returns the attached coalescer, or nil.
func (h *Handle) Coalescer() *coalesce.Coalescer {
	return h.coalescer
}

// SetCallbacks replaces the typed callbacks. The channel stays open.
func (h *Handle) SetCallbacks(callbacks Callbacks) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = callbacks
}

// Watch returns a stream of status transitions and a function that stops
// the stream. Sends never block: a watcher whose buffer is full misses
// transitions, Status is always current. The channel is closed after the
// Closed transition or when stop is called.
func (h *Handle) Watch(buffer int) (<-chan StatusChange, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan StatusChange, buffer)

	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextWatch
	h.nextWatch++
	h.watchers[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if w, ok := h.watchers[id]; ok {
				delete(h.watchers, id)
				close(w)
			}
		})
	}
}

// Reconnect retries immediately after exhaustion or a disconnect.
func (h *Handle) Reconnect() error {
	return h.sub.Reconnect()
}

// Unsubscribe stops the coalescer, closes the subscription and removes
// the handle from its Manager. Pending timers are cancelled before it
// returns. It is idempotent and never affects other handles.
func (h *Handle) Unsubscribe() {
	if h.coalescer != nil {
		h.coalescer.Stop()
	}
	_ = h.sub.Close()
	h.manager.remove(h.id)
}

func (h *Handle) dispatch(ev feed.ChangeEvent) {
	h.mu.RLock()
	callbacks := h.callbacks
	h.mu.RUnlock()

	callbacks.dispatch(ev)
	if h.coalescer != nil && h.coalesced.Has(ev.Kind) {
		h.coalescer.Observe(ev)
	}
}

func (h *Handle) onStatus(change StatusChange) {
	if fn := h.manager.statusCallback(); fn != nil {
		fn(change)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	for _, w := range h.watchers {
		select {
		case w <- change:
		default:
		}
	}
	if change.New == connection.StatusClosed {
		h.done = true
		for id, w := range h.watchers {
			close(w)
			delete(h.watchers, id)
		}
	}
}
