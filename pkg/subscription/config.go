package subscription

import (
	"fmt"

	"github.com/fundingarb/livesync/pkg/connection"
	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/transport"
)

// Config describes one feed subscription. It is copied when a
// Subscription is created; changing resource or predicate means creating
// a new Subscription.
type Config struct {
	// Resource is the feed name.
	Resource string

	// Schema is the database schema. Empty means feed.DefaultSchema.
	Schema string

	// Events selects the change kinds to deliver. Zero means all.
	Events feed.EventMask

	// Predicate is an optional column=op.value filter bound at open time.
	Predicate string

	// Enabled must be true for the subscription to do any I/O.
	Enabled bool

	// Policy controls reconnect backoff. Zero fields take defaults.
	Policy connection.Policy

	// KeyField names the record identity field used in traces.
	// Empty means feed.KeyFieldFor(Resource).
	KeyField string

	// Codec decodes raw payloads. Nil means feed.Auto.
	Codec feed.Codec
}

// DefaultConfig returns an enabled config for resource delivering all
// change kinds with the default backoff policy.
func DefaultConfig(resource string) Config {
	return Config{
		Resource: resource,
		Schema:   feed.DefaultSchema,
		Events:   feed.MaskAll,
		Enabled:  true,
		Policy:   connection.DefaultPolicy(),
		KeyField: feed.KeyFieldFor(resource),
	}
}

// Validate checks the config for caller errors.
func (c Config) Validate() error {
	if c.Resource == "" {
		return fmt.Errorf("%w: empty resource", ErrInvalidConfig)
	}
	if _, err := feed.ParseFilter(c.Predicate); err != nil {
		return fmt.Errorf("%w: predicate: %v", ErrInvalidConfig, err)
	}
	if c.Events&^feed.MaskAll != 0 {
		return fmt.Errorf("%w: event mask %#x", ErrInvalidConfig, uint8(c.Events))
	}
	if c.Policy.BaseDelay < 0 {
		return fmt.Errorf("%w: negative base delay", ErrInvalidConfig)
	}
	return nil
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Schema == "" {
		c.Schema = feed.DefaultSchema
	}
	if c.Events == 0 {
		c.Events = feed.MaskAll
	}
	if c.KeyField == "" {
		c.KeyField = feed.KeyFieldFor(c.Resource)
	}
	if c.Codec == nil {
		c.Codec = feed.Auto
	}
	c.Policy = c.Policy.WithDefaults()
	return c
}

// ChannelSpec returns the transport scope for the config.
func (c Config) ChannelSpec() transport.ChannelSpec {
	return transport.ChannelSpec{
		Resource:  c.Resource,
		Schema:    c.Schema,
		Events:    c.Events,
		Predicate: c.Predicate,
	}
}
