package subscription

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fundingarb/livesync/pkg/coalesce"
	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/log"
	"github.com/fundingarb/livesync/pkg/transport"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultMaxSubscriptions bounds the handles one Manager will hold.
const DefaultMaxSubscriptions = 64

// Callbacks are the typed event callbacks of one Handle. Nil fields are
// skipped.
type Callbacks struct {
	OnCreated func(feed.ChangeEvent)
	OnChanged func(feed.ChangeEvent)
	OnRemoved func(feed.ChangeEvent)
}

func (c Callbacks) dispatch(ev feed.ChangeEvent) {
	var fn func(feed.ChangeEvent)
	switch ev.Kind {
	case feed.KindCreated:
		fn = c.OnCreated
	case feed.KindChanged:
		fn = c.OnChanged
	case feed.KindRemoved:
		fn = c.OnRemoved
	}
	if fn != nil {
		fn(ev)
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerClock sets the clock passed to every subscription and
// coalescer.
func WithManagerClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithManagerLogger sets the operational logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerProtocolLogger sets the trace logger.
func WithManagerProtocolLogger(logger log.Logger) ManagerOption {
	return func(m *Manager) {
		m.protocolLogger = logger
	}
}

// WithMaxSubscriptions sets the handle limit.
func WithMaxSubscriptions(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxSubscriptions = n
		}
	}
}

// SubscribeOption configures one Subscribe call.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	quiet     time.Duration
	onSummary func(coalesce.Summary)
	coalesced feed.EventMask
	id        string
}

// WithCoalescer attaches a Coalescer to the handle. Typed callbacks still
// run for every event; onSummary additionally runs once per burst.
func WithCoalescer(quiet time.Duration, onSummary func(coalesce.Summary)) SubscribeOption {
	return func(o *subscribeOptions) {
		o.quiet = quiet
		o.onSummary = onSummary
	}
}

// WithCoalescedKinds selects the kinds fed to the Coalescer.
// The default is created events only.
func WithCoalescedKinds(mask feed.EventMask) SubscribeOption {
	return func(o *subscribeOptions) {
		o.coalesced = mask
	}
}

// WithID sets the handle ID instead of a random UUID.
func WithID(id string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.id = id
	}
}

// Manager creates and tears down subscriptions for application code.
type Manager struct {
	mu sync.RWMutex

	transport        transport.Transport
	clock            clockwork.Clock
	logger           *slog.Logger
	protocolLogger   log.Logger
	maxSubscriptions int

	handles  map[string]*Handle
	onStatus func(StatusChange)
	closed   bool
}

// NewManager creates a Manager opening channels on tr.
func NewManager(tr transport.Transport, opts ...ManagerOption) *Manager {
	m := &Manager{
		transport:        tr,
		clock:            clockwork.NewRealClock(),
		maxSubscriptions: DefaultMaxSubscriptions,
		handles:          make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe creates a Subscription for cfg, opens it and returns its
// Handle. Config errors and the handle limit are reported synchronously;
// connection failures only show up in the handle's status.
func (m *Manager) Subscribe(cfg Config, callbacks Callbacks, opts ...SubscribeOption) (*Handle, error) {
	o := subscribeOptions{coalesced: feed.MaskOf(feed.KindCreated)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if len(m.handles) >= m.maxSubscriptions {
		m.mu.Unlock()
		return nil, ErrResourceExhausted
	}
	if _, dup := m.handles[o.id]; dup {
		m.mu.Unlock()
		return nil, ErrAlreadyOpen
	}

	h := &Handle{
		id:        o.id,
		manager:   m,
		callbacks: callbacks,
		coalesced: o.coalesced,
		watchers:  make(map[int]chan StatusChange),
	}
	if o.onSummary != nil {
		h.coalescer = coalesce.New(o.quiet, o.onSummary,
			coalesce.WithClock(m.clock),
			coalesce.WithLogger(m.logger),
			coalesce.WithProtocolLogger(m.protocolLogger, o.id))
	}

	sub, err := New(o.id, cfg, m.transport,
		WithClock(m.clock),
		WithLogger(m.logger),
		WithProtocolLogger(m.protocolLogger),
		WithDispatcher(h.dispatch),
		WithStatusObserver(h.onStatus))
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	h.sub = sub
	m.handles[o.id] = h
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Debug("Manager: subscribe",
			"subscriptionID", o.id,
			"resource", cfg.Resource,
			"predicate", cfg.Predicate,
			"events", cfg.Events.String())
	}

	if err := sub.Open(); err != nil {
		m.remove(o.id)
		return nil, err
	}
	return h, nil
}

// Get returns the handle with id.
func (m *Manager) Get(id string) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.handles[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return h, nil
}

// Handles returns all live handles ordered by resource, then ID.
func (m *Manager) Handles() []*Handle {
	m.mu.RLock()
	out := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Resource(), out[j].Resource()
		if ri != rj {
			return ri < rj
		}
		return out[i].id < out[j].id
	})
	return out
}

// Count returns the number of live handles.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// OnStatusChange sets the callback for status transitions of any handle.
func (m *Manager) OnStatusChange(fn func(StatusChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = fn
}

// Close unsubscribes every handle and rejects further Subscribe calls.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	handles := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		h.Unsubscribe()
	}
	return nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles, id)
}

func (m *Manager) statusCallback() func(StatusChange) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onStatus
}
