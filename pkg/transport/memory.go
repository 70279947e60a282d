package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/fundingarb/livesync/pkg/feed"
)

// channelState tracks a MemoryChannel's lifecycle.
type channelState uint8

const (
	channelPending channelState = iota
	channelOpen
	channelClosed
)

// Hub is an in-memory Transport. Channels stay pending until the test or
// caller drives them with Open, Fail or Drop, unless auto-open is enabled.
type Hub struct {
	mu sync.Mutex

	channels []*MemoryChannel
	autoOpen bool
	failNext error
	codec    feed.Codec
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithAutoOpen makes OpenChannel report OnOpen before returning.
func WithAutoOpen() HubOption {
	return func(h *Hub) { h.autoOpen = true }
}

// WithHubCodec sets the codec Emit uses to encode events.
func WithHubCodec(c feed.Codec) HubOption {
	return func(h *Hub) { h.codec = c }
}

// NewHub creates an in-memory transport.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{codec: feed.JSON}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OpenChannel registers a channel for spec.
func (h *Hub) OpenChannel(ctx context.Context, spec ChannelSpec, handler Handler) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter, err := feed.ParseFilter(spec.Predicate)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.failNext != nil {
		err := h.failNext
		h.failNext = nil
		h.mu.Unlock()
		return nil, err
	}
	ch := &MemoryChannel{
		spec:    spec,
		filter:  filter,
		handler: handler,
	}
	h.channels = append(h.channels, ch)
	autoOpen := h.autoOpen
	h.mu.Unlock()

	if autoOpen {
		ch.Open()
	}
	return ch, nil
}

// FailNextOpen makes the next OpenChannel call return err synchronously.
func (h *Hub) FailNextOpen(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = err
}

// SetAutoOpen toggles auto-open for channels opened from now on.
func (h *Hub) SetAutoOpen(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.autoOpen = enabled
}

// Channels returns every channel ever opened for resource, oldest first.
// An empty resource returns all channels.
func (h *Hub) Channels(resource string) []*MemoryChannel {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*MemoryChannel
	for _, ch := range h.channels {
		if resource == "" || ch.spec.Resource == resource {
			out = append(out, ch)
		}
	}
	return out
}

// Active returns the channels for resource that are not closed.
func (h *Hub) Active(resource string) []*MemoryChannel {
	var out []*MemoryChannel
	for _, ch := range h.Channels(resource) {
		if !ch.IsClosed() {
			out = append(out, ch)
		}
	}
	return out
}

// Last returns the most recently opened channel for resource, or nil.
func (h *Hub) Last(resource string) *MemoryChannel {
	chs := h.Channels(resource)
	if len(chs) == 0 {
		return nil
	}
	return chs[len(chs)-1]
}

// OpenCount returns how many times a channel was requested for resource.
func (h *Hub) OpenCount(resource string) int {
	return len(h.Channels(resource))
}

// Emit encodes ev and delivers it to every open channel whose resource,
// event mask and predicate accept it. It returns the number of deliveries.
func (h *Hub) Emit(ev feed.ChangeEvent) (int, error) {
	raw, err := h.codec.Encode(ev)
	if err != nil {
		return 0, fmt.Errorf("transport: encode %s event: %w", ev.Kind, err)
	}

	delivered := 0
	for _, ch := range h.Channels(ev.Resource) {
		if !ch.spec.Events.Has(ev.Kind) || !ch.filter.MatchEvent(ev) {
			continue
		}
		if ch.Deliver(raw) {
			delivered++
		}
	}
	return delivered, nil
}

// Publish delivers a raw payload to every open channel for resource.
func (h *Hub) Publish(resource string, raw []byte) int {
	delivered := 0
	for _, ch := range h.Channels(resource) {
		if ch.Deliver(raw) {
			delivered++
		}
	}
	return delivered
}

// MemoryChannel is a Hub channel.
type MemoryChannel struct {
	spec    ChannelSpec
	filter  feed.Filter
	handler Handler

	mu    sync.Mutex
	state channelState
}

// Spec returns the channel's scope.
func (c *MemoryChannel) Spec() ChannelSpec {
	return c.spec
}

// Open reports success to the handler. It is a no-op unless pending.
func (c *MemoryChannel) Open() bool {
	c.mu.Lock()
	if c.state != channelPending {
		c.mu.Unlock()
		return false
	}
	c.state = channelOpen
	c.mu.Unlock()

	c.handler.OnOpen()
	return true
}

// Fail reports err to the handler and closes the channel.
func (c *MemoryChannel) Fail(err error) bool {
	if !c.finish() {
		return false
	}
	c.handler.OnError(err)
	return true
}

// Drop reports a clean close to the handler.
func (c *MemoryChannel) Drop() bool {
	if !c.finish() {
		return false
	}
	c.handler.OnClosed()
	return true
}

// Deliver passes raw to the handler if the channel is open.
func (c *MemoryChannel) Deliver(raw []byte) bool {
	c.mu.Lock()
	open := c.state == channelOpen
	c.mu.Unlock()

	if !open {
		return false
	}
	c.handler.OnMessage(raw)
	return true
}

// Close closes the channel without notifying the handler.
func (c *MemoryChannel) Close() error {
	c.finish()
	return nil
}

// IsOpen reports whether the channel is open.
func (c *MemoryChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == channelOpen
}

// IsClosed reports whether the channel was closed by either side.
func (c *MemoryChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == channelClosed
}

func (c *MemoryChannel) finish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == channelClosed {
		return false
	}
	c.state = channelClosed
	return true
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*Hub)(nil)
	_ Channel   = (*MemoryChannel)(nil)
)
