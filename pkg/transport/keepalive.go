package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Keep-alive constants.
const (
	// DefaultHeartbeatInterval is how long a channel may stay idle before
	// its connection is pinged.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultPingTimeout bounds a single ping.
	DefaultPingTimeout = 5 * time.Second

	// DefaultMaxMissedPings is the number of consecutive failed pings
	// before the channel is reported as failed.
	DefaultMaxMissedPings = 2
)

// ErrKeepAliveTimeout is reported when a channel misses too many pings.
var ErrKeepAliveTimeout = errors.New("keep-alive timeout")

// KeepAliveConfig configures liveness checks on idle channels.
type KeepAliveConfig struct {
	// Interval is the idle time between pings.
	Interval time.Duration

	// PingTimeout bounds each ping.
	PingTimeout time.Duration

	// MaxMissedPings is the number of failed pings tolerated in a row.
	MaxMissedPings int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval:       DefaultHeartbeatInterval,
		PingTimeout:    DefaultPingTimeout,
		MaxMissedPings: DefaultMaxMissedPings,
	}
}

// withDefaults fills unset fields.
func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultHeartbeatInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.MaxMissedPings <= 0 {
		c.MaxMissedPings = DefaultMaxMissedPings
	}
	return c
}

// DetectionDelay calculates the maximum time to detect a dead connection.
// Calculated as: (Interval + PingTimeout) * MaxMissedPings
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	c = c.withDefaults()
	return (c.Interval + c.PingTimeout) * time.Duration(c.MaxMissedPings)
}

// PingFunc checks that the underlying connection is alive.
type PingFunc func(ctx context.Context) error

// KeepAlive counts consecutive ping failures for one channel.
type KeepAlive struct {
	config KeepAliveConfig

	mu           sync.Mutex
	missed       int
	lastPingTime time.Time
	lastOKTime   time.Time
}

// NewKeepAlive creates a keep-alive tracker.
func NewKeepAlive(config KeepAliveConfig) *KeepAlive {
	return &KeepAlive{config: config.withDefaults()}
}

// Interval returns the idle time between pings.
func (ka *KeepAlive) Interval() time.Duration {
	return ka.config.Interval
}

// Check runs one ping. It returns an error wrapping ErrKeepAliveTimeout
// once MaxMissedPings consecutive pings have failed, nil otherwise.
func (ka *KeepAlive) Check(ctx context.Context, ping PingFunc) error {
	pingCtx, cancel := context.WithTimeout(ctx, ka.config.PingTimeout)
	err := ping(pingCtx)
	cancel()

	ka.mu.Lock()
	defer ka.mu.Unlock()

	now := time.Now()
	ka.lastPingTime = now
	if err == nil {
		ka.missed = 0
		ka.lastOKTime = now
		return nil
	}

	ka.missed++
	if ka.missed >= ka.config.MaxMissedPings {
		return fmt.Errorf("%w: %d missed pings: %v", ErrKeepAliveTimeout, ka.missed, err)
	}
	return nil
}

// MarkActive records traffic on the channel, which counts as a success.
func (ka *KeepAlive) MarkActive() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.missed = 0
	ka.lastOKTime = time.Now()
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPingTime: ka.lastPingTime,
		LastOKTime:   ka.lastOKTime,
		MissedPings:  ka.missed,
	}
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastOKTime   time.Time
	MissedPings  int
}
