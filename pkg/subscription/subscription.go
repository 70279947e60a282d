package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fundingarb/livesync/pkg/connection"
	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/log"
	"github.com/fundingarb/livesync/pkg/transport"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Subscription errors.
var (
	ErrInvalidConfig        = errors.New("invalid subscription config")
	ErrAlreadyOpen          = errors.New("subscription already open")
	ErrClosed               = errors.New("subscription closed")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrResourceExhausted    = errors.New("maximum subscriptions reached")
	ErrResourceMismatch     = errors.New("payload for another resource")
	ErrChannelClosed        = errors.New("channel closed by transport")
)

// Malformed payload log throttle.
const (
	malformedLogBurst    = 5
	malformedLogInterval = time.Second
)

// StatusChange describes one status transition.
type StatusChange struct {
	SubscriptionID string
	Resource       string
	Old            connection.Status
	New            connection.Status

	// Err is the failure that caused an Errored transition.
	Err error

	// Attempt is the consecutive failure count after the transition.
	Attempt int

	// RetryIn is the scheduled reconnect delay; zero if none.
	RetryIn time.Duration

	At time.Time
}

// Option configures a Subscription.
type Option func(*Subscription)

// WithClock sets the clock used for retry timers and receipt times.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Subscription) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Subscription) {
		s.logger = logger
	}
}

// WithProtocolLogger sets the trace logger.
func WithProtocolLogger(logger log.Logger) Option {
	return func(s *Subscription) {
		s.protocolLogger = logger
	}
}

// WithDispatcher sets the function receiving every accepted event.
func WithDispatcher(fn func(feed.ChangeEvent)) Option {
	return func(s *Subscription) {
		s.dispatch = fn
	}
}

// WithStatusObserver adds a function called after every status transition.
func WithStatusObserver(fn func(StatusChange)) Option {
	return func(s *Subscription) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// Subscription keeps one feed connected through a Transport.
// All transitions are serialized by mu; callbacks and observers run
// outside the lock.
type Subscription struct {
	id        string
	cfg       Config
	transport transport.Transport

	clock          clockwork.Clock
	logger         *slog.Logger
	protocolLogger log.Logger
	dispatch       func(feed.ChangeEvent)
	observers      []func(StatusChange)
	malformedLog   *rate.Limiter

	mu          sync.Mutex
	status      connection.Status
	backoff     *connection.Backoff
	gen         uint64
	channel     transport.Channel
	cancel      context.CancelFunc
	retry       clockwork.Timer
	lastEventAt time.Time
	lastErr     error
	received    int
	dropped     int
}

// New creates a Subscription in the Idle state. Nothing happens until
// Open is called.
func New(id string, cfg Config, tr transport.Transport, opts ...Option) (*Subscription, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil && cfg.Enabled {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()

	s := &Subscription{
		id:           id,
		cfg:          cfg,
		transport:    tr,
		clock:        clockwork.NewRealClock(),
		malformedLog: rate.NewLimiter(rate.Every(malformedLogInterval), malformedLogBurst),
		status:       connection.StatusIdle,
		backoff:      connection.NewBackoffWithPolicy(cfg.Policy),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the subscription ID.
func (s *Subscription) ID() string {
	return s.id
}

// Config returns a copy of the effective config.
func (s *Subscription) Config() Config {
	return s.cfg
}

// Status returns the current status.
func (s *Subscription) Status() connection.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastEventAt returns the receipt time of the last accepted event.
func (s *Subscription) LastEventAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventAt
}

// LastError returns the most recent channel error. It is cleared when a
// channel opens.
func (s *Subscription) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Attempts returns the number of consecutive failures.
func (s *Subscription) Attempts() int {
	return s.backoff.Attempts()
}

// Received returns the number of accepted events.
func (s *Subscription) Received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}

// Dropped returns the number of payloads dropped as malformed.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// RetryPending reports whether a reconnect timer is scheduled.
func (s *Subscription) RetryPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retry != nil
}

// Open starts connecting. A disabled subscription moves to Disabled and
// performs no I/O. Open fails with ErrAlreadyOpen while connecting,
// connected or waiting for a scheduled retry, and with ErrClosed after
// Close.
func (s *Subscription) Open() error {
	return s.start(false)
}

// Reconnect is Open for a subscription that gave up or was disconnected.
// A scheduled retry is cancelled and the attempt happens immediately.
func (s *Subscription) Reconnect() error {
	return s.start(true)
}

func (s *Subscription) start(skipWait bool) error {
	s.mu.Lock()
	switch {
	case s.status == connection.StatusClosed:
		s.mu.Unlock()
		return ErrClosed
	case !s.cfg.Enabled:
		change := s.setStatusLocked(connection.StatusDisabled, nil)
		s.mu.Unlock()
		s.notify(change)
		return nil
	case s.status == connection.StatusConnecting, s.status == connection.StatusConnected:
		s.mu.Unlock()
		return ErrAlreadyOpen
	case s.retry != nil && !skipWait:
		s.mu.Unlock()
		return ErrAlreadyOpen
	}

	s.stopRetryLocked()
	s.backoff.Reset()
	change, ctx, gen := s.connectLocked()
	s.mu.Unlock()

	s.notify(change)
	s.dial(ctx, gen)
	return nil
}

// Close cancels any pending retry, tears down the channel and moves to
// Closed. No timer callback and no new event delivery starts after Close
// returns. Close is idempotent.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.status == connection.StatusClosed {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	s.stopRetryLocked()
	ch, cancel := s.detachLocked()
	change := s.setStatusLocked(connection.StatusClosed, nil)
	s.mu.Unlock()

	err := s.release(ch, cancel)
	s.notify(change)
	return err
}

// connectLocked starts a new channel generation.
func (s *Subscription) connectLocked() (StatusChange, context.Context, uint64) {
	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	return s.setStatusLocked(connection.StatusConnecting, nil), ctx, s.gen
}

func (s *Subscription) dial(ctx context.Context, gen uint64) {
	h := &channelHandler{sub: s, gen: gen}
	ch, err := s.transport.OpenChannel(ctx, s.cfg.ChannelSpec(), h)
	if err != nil {
		s.onError(gen, fmt.Errorf("open channel: %w", err))
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		// Failed, dropped or closed while opening.
		s.mu.Unlock()
		_ = ch.Close()
		return
	}
	s.channel = ch
	s.mu.Unlock()
}

func (s *Subscription) onOpen(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.status != connection.StatusConnecting {
		s.mu.Unlock()
		return
	}
	s.backoff.Reset()
	s.lastErr = nil
	change := s.setStatusLocked(connection.StatusConnected, nil)
	s.mu.Unlock()

	s.notify(change)
}

func (s *Subscription) onError(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen || !channelActive(s.status) {
		s.mu.Unlock()
		return
	}
	s.gen++
	ch, cancel := s.detachLocked()
	s.lastErr = err

	change := s.setStatusLocked(connection.StatusErrored, err)
	if delay, ok := s.backoff.Next(); ok {
		retryGen := s.gen
		s.retry = s.clock.AfterFunc(delay, func() {
			s.retryFired(retryGen)
		})
		change.RetryIn = delay
	}
	change.Attempt = s.backoff.Attempts()
	s.mu.Unlock()

	_ = s.release(ch, cancel)
	s.notify(change)
}

func (s *Subscription) onClosed(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !channelActive(s.status) {
		s.mu.Unlock()
		return
	}
	s.gen++
	ch, cancel := s.detachLocked()
	change := s.setStatusLocked(connection.StatusDisconnected, nil)
	s.mu.Unlock()

	_ = s.release(ch, cancel)
	s.notify(change)
}

func (s *Subscription) retryFired(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.status != connection.StatusErrored || s.retry == nil {
		s.mu.Unlock()
		return
	}
	s.retry = nil
	change, ctx, next := s.connectLocked()
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("Subscription: retrying",
			"subscriptionID", s.id,
			"resource", s.cfg.Resource,
			"attempt", s.backoff.Attempts())
	}
	s.notify(change)
	s.dial(ctx, next)
}

func (s *Subscription) onMessage(gen uint64, raw []byte) {
	if !s.current(gen) {
		return
	}

	ev, err := s.cfg.Codec.Decode(raw)
	if err == nil && ev.Resource != "" && ev.Resource != s.cfg.Resource {
		err = fmt.Errorf("%w: %s", ErrResourceMismatch, ev.Resource)
	}
	if err != nil {
		s.drop(gen, raw, err)
		return
	}
	if !s.cfg.Events.Has(ev.Kind) {
		return
	}
	ev.Resource = s.cfg.Resource
	ev.ReceivedAt = s.clock.Now()

	s.mu.Lock()
	if gen != s.gen || s.status != connection.StatusConnected {
		s.mu.Unlock()
		return
	}
	s.lastEventAt = ev.ReceivedAt
	s.received++
	s.mu.Unlock()

	s.traceChange(ev, len(raw))
	if s.dispatch != nil {
		s.dispatch(ev)
	}
}

func (s *Subscription) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen && s.status == connection.StatusConnected
}

// drop counts and reports a malformed payload without touching the state.
func (s *Subscription) drop(gen uint64, raw []byte, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.dropped++
	dropped := s.dropped
	s.mu.Unlock()

	if s.logger != nil && s.malformedLog.AllowN(s.clock.Now(), 1) {
		s.logger.Warn("Subscription: dropped malformed payload",
			"subscriptionID", s.id,
			"resource", s.cfg.Resource,
			"size", len(raw),
			"dropped", dropped,
			"error", err)
	}
	if s.protocolLogger != nil {
		payload, truncated := log.CapturePayload(raw)
		s.protocolLogger.Log(log.Event{
			Timestamp:      s.clock.Now(),
			SubscriptionID: s.id,
			Resource:       s.cfg.Resource,
			Layer:          log.LayerSubscription,
			Category:       log.CategoryError,
			Predicate:      s.cfg.Predicate,
			Error: &log.ErrorEventData{
				Layer:     log.LayerSubscription,
				Message:   err.Error(),
				Context:   "decode",
				Payload:   payload,
				Truncated: truncated,
			},
		})
	}
}

// detachLocked takes the current channel and its context cancel.
func (s *Subscription) detachLocked() (transport.Channel, context.CancelFunc) {
	ch, cancel := s.channel, s.cancel
	s.channel, s.cancel = nil, nil
	return ch, cancel
}

func (s *Subscription) release(ch transport.Channel, cancel context.CancelFunc) error {
	var err error
	if ch != nil {
		err = ch.Close()
	}
	if cancel != nil {
		cancel()
	}
	return err
}

func (s *Subscription) stopRetryLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

func (s *Subscription) setStatusLocked(status connection.Status, err error) StatusChange {
	change := StatusChange{
		SubscriptionID: s.id,
		Resource:       s.cfg.Resource,
		Old:            s.status,
		New:            status,
		Err:            err,
		Attempt:        s.backoff.Attempts(),
		At:             s.clock.Now(),
	}
	s.status = status
	return change
}

// notify logs, traces and publishes a transition. Repeated states are
// not published.
func (s *Subscription) notify(change StatusChange) {
	if change.Old == change.New {
		return
	}
	s.logTransition(change)
	s.traceTransition(change)
	for _, fn := range s.observers {
		fn(change)
	}
}

func (s *Subscription) logTransition(change StatusChange) {
	if s.logger == nil {
		return
	}
	attrs := []any{
		"subscriptionID", s.id,
		"resource", s.cfg.Resource,
		"from", change.Old.String(),
		"to", change.New.String(),
	}
	switch change.New {
	case connection.StatusConnected, connection.StatusClosed:
		s.logger.Info("Subscription: status", attrs...)
	case connection.StatusErrored:
		attrs = append(attrs, "attempt", change.Attempt, "error", change.Err)
		if change.RetryIn > 0 {
			s.logger.Warn("Subscription: channel error, retry scheduled", append(attrs, "delay", change.RetryIn)...)
		} else {
			s.logger.Error("Subscription: retries exhausted", attrs...)
		}
	default:
		s.logger.Debug("Subscription: status", attrs...)
	}
}

func (s *Subscription) traceTransition(change StatusChange) {
	if s.protocolLogger == nil {
		return
	}
	sc := &log.StateChangeEvent{
		OldState: change.Old.String(),
		NewState: change.New.String(),
		Attempt:  change.Attempt,
	}
	if change.Err != nil {
		sc.Reason = change.Err.Error()
	}
	if change.RetryIn > 0 {
		d := change.RetryIn
		sc.RetryIn = &d
	}
	s.protocolLogger.Log(log.Event{
		Timestamp:      change.At,
		SubscriptionID: s.id,
		Resource:       s.cfg.Resource,
		Layer:          log.LayerSubscription,
		Category:       log.CategoryState,
		Predicate:      s.cfg.Predicate,
		StateChange:    sc,
	})
}

func (s *Subscription) traceChange(ev feed.ChangeEvent, size int) {
	if s.protocolLogger == nil {
		return
	}
	data := &log.ChangeEventData{
		Kind: ev.Kind.String(),
		Size: size,
	}
	if key, ok := ev.Key(s.cfg.KeyField); ok {
		data.Key = feed.FormatValue(key)
	}
	for field := range ev.NewValue {
		data.Fields = append(data.Fields, field)
	}
	sort.Strings(data.Fields)
	s.protocolLogger.Log(log.Event{
		Timestamp:      ev.ReceivedAt,
		SubscriptionID: s.id,
		Resource:       s.cfg.Resource,
		Layer:          log.LayerSubscription,
		Category:       log.CategoryChange,
		Predicate:      s.cfg.Predicate,
		Change:         data,
	})
}

// channelActive reports whether a channel is opening or open.
func channelActive(status connection.Status) bool {
	return status == connection.StatusConnecting || status == connection.StatusConnected
}

// channelHandler binds transport callbacks to one channel generation.
type channelHandler struct {
	sub *Subscription
	gen uint64
}

func (h *channelHandler) OnOpen() { h.sub.onOpen(h.gen) }

func (h *channelHandler) OnError(err error) { h.sub.onError(h.gen, err) }

func (h *channelHandler) OnClosed() { h.sub.onClosed(h.gen) }

func (h *channelHandler) OnMessage(raw []byte) { h.sub.onMessage(h.gen, raw) }

// Compile-time interface satisfaction check.
var _ transport.Handler = (*channelHandler)(nil)
