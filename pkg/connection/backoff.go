package connection

import (
	"sync"
	"time"
)

// Backoff defaults from the dashboard realtime configuration.
const (
	// DefaultBaseDelay is the delay before the first retry.
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxRetries is the number of automatic retries after a failure.
	DefaultMaxRetries = 5
)

// Policy computes reconnect delays. It is a pure value and safe to copy.
type Policy struct {
	// BaseDelay is multiplied by the attempt number.
	BaseDelay time.Duration

	// MaxRetries bounds the number of automatic retries.
	MaxRetries int
}

// DefaultPolicy returns the default linear policy.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:  DefaultBaseDelay,
		MaxRetries: DefaultMaxRetries,
	}
}

// WithDefaults fills unset fields. A negative MaxRetries disables
// automatic retries entirely.
func (p Policy) WithDefaults() Policy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	return p
}

// Delay returns the wait before retry attempt n (starting at 1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.BaseDelay * time.Duration(attempt)
}

// Allows reports whether retry attempt n may be scheduled.
func (p Policy) Allows(attempt int) bool {
	return attempt >= 1 && attempt <= p.MaxRetries
}

// Sequence returns every delay the policy will ever produce.
func (p Policy) Sequence() []time.Duration {
	if p.MaxRetries <= 0 {
		return nil
	}
	seq := make([]time.Duration, 0, p.MaxRetries)
	for n := 1; n <= p.MaxRetries; n++ {
		seq = append(seq, p.Delay(n))
	}
	return seq
}

// Backoff tracks consecutive failures against a Policy.
type Backoff struct {
	mu sync.Mutex

	policy   Policy
	attempts int
}

// NewBackoff creates a backoff tracker with the default policy.
func NewBackoff() *Backoff {
	return NewBackoffWithPolicy(DefaultPolicy())
}

// NewBackoffWithPolicy creates a backoff tracker for p.
func NewBackoffWithPolicy(p Policy) *Backoff {
	return &Backoff{policy: p.WithDefaults()}
}

// Next records a failure and returns the delay before the next retry.
// ok is false once the failure count exceeds MaxRetries.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++
	if !b.policy.Allows(b.attempts) {
		return 0, false
	}
	return b.policy.Delay(b.attempts), true
}

// Reset clears the failure count.
// Call this after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts returns the number of failures since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Exhausted reports whether no further retries will be granted.
func (b *Backoff) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts > 0 && !b.policy.Allows(b.attempts)
}

// Policy returns the policy in use.
func (b *Backoff) Policy() Policy {
	return b.policy
}
