package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fundingarb/livesync/pkg/coalesce"
	"github.com/fundingarb/livesync/pkg/connection"
	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/merge"
	"github.com/fundingarb/livesync/pkg/subscription"
	"github.com/fundingarb/livesync/pkg/transport"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportMemory   = "memory"
	TransportPostgres = "postgres"
)

// LatestFundingRatesFunction returns one row per coin with the most
// recent scrape.
const LatestFundingRatesFunction = "get_latest_funding_rates"

// Environment variables read by Load.
const (
	EnvDatabaseURL = "LIVESYNC_DATABASE_URL"
	EnvTransport   = "LIVESYNC_TRANSPORT"
	EnvLogLevel    = "LIVESYNC_LOG_LEVEL"
	EnvLogFormat   = "LIVESYNC_LOG_FORMAT"
	EnvTraceFile   = "LIVESYNC_TRACE_FILE"
)

// Config is the complete livesync configuration.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Logging   LoggingConfig   `yaml:"logging"`
	Feeds     []FeedConfig    `yaml:"feeds"`
}

// TransportConfig selects and tunes the push channel.
type TransportConfig struct {
	Kind              string        `yaml:"kind"` // memory | postgres
	DSN               string        `yaml:"dsn"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	MaxMissedPings    int           `yaml:"max_missed_pings"`
}

// RealtimeConfig holds defaults shared by every feed.
type RealtimeConfig struct {
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	QuietPeriod          time.Duration `yaml:"quiet_period"`
}

// LoggingConfig controls slog output and trace capture.
type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug | info | warn | error
	Format    string `yaml:"format"` // text | json
	TraceFile string `yaml:"trace_file"`
}

// FeedConfig describes one subscribed resource.
type FeedConfig struct {
	Resource string   `yaml:"resource"`
	Schema   string   `yaml:"schema"`
	Events   []string `yaml:"events"`
	Filter   string   `yaml:"filter"`
	KeyField string   `yaml:"key_field"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	Insert string `yaml:"insert"` // prepend | append
	SortBy string `yaml:"sort_by"`

	// Query overrides the snapshot SQL. Funding rates default to the
	// latest row per coin.
	Query string `yaml:"query"`

	Coalesce    bool          `yaml:"coalesce"`
	QuietPeriod time.Duration `yaml:"quiet_period"`

	// Per-feed backoff; zero values inherit the realtime section.
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// LoadError reports a configuration problem.
type LoadError struct {
	// File is the configuration file, if any.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File == "" {
		return "config: " + msg
	}
	return "config: " + e.File + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default returns the built-in configuration with the dashboard feeds.
func Default() *Config {
	cfg := &Config{
		Transport: TransportConfig{Kind: TransportMemory},
		Feeds: []FeedConfig{
			{
				Resource: feed.ResourceFundingRates,
				Events:   []string{"INSERT"},
				KeyField: "coin",
				SortBy:   "hyperliquid_rate",
				Coalesce: true,
				// Funding rate batches land within a second or so.
				QuietPeriod: 1500 * time.Millisecond,
			},
			{Resource: feed.ResourcePositions},
			{Resource: feed.ResourcePositionSnapshots, Events: []string{"INSERT"}, Insert: "append"},
			{Resource: feed.ResourcePositionAlerts},
			{Resource: feed.ResourceUserSettings, Events: []string{"UPDATE"}, Enabled: boolPtr(false)},
			{Resource: feed.ResourceCoins},
			{Resource: feed.ResourceCoinMarkets},
		},
	}
	setDefaults(cfg)
	return cfg
}

// Load reads the configuration at path. An empty path starts from
// Default. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		cfg := Default()
		applyEnvOverrides(cfg)
		setDefaults(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "read", Cause: err}
	}
	return parse(data, path)
}

// Parse decodes YAML data, applies environment overrides and defaults,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	return parse(data, "")
}

func parse(data []byte, file string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &LoadError{File: file, Message: "parse YAML", Cause: err}
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = Default().Feeds
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = file
		}
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Transport.DSN = v
	}
	if v := os.Getenv(EnvTransport); v != "" {
		cfg.Transport.Kind = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvTraceFile); v != "" {
		cfg.Logging.TraceFile = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Transport.Kind == "" {
		if cfg.Transport.DSN != "" {
			cfg.Transport.Kind = TransportPostgres
		} else {
			cfg.Transport.Kind = TransportMemory
		}
	}
	ka := transport.DefaultKeepAliveConfig()
	if cfg.Transport.HeartbeatInterval <= 0 {
		cfg.Transport.HeartbeatInterval = ka.Interval
	}
	if cfg.Transport.PingTimeout <= 0 {
		cfg.Transport.PingTimeout = ka.PingTimeout
	}
	if cfg.Transport.MaxMissedPings <= 0 {
		cfg.Transport.MaxMissedPings = ka.MaxMissedPings
	}
	if cfg.Realtime.ReconnectDelay <= 0 {
		cfg.Realtime.ReconnectDelay = connection.DefaultBaseDelay
	}
	if cfg.Realtime.MaxReconnectAttempts == 0 {
		cfg.Realtime.MaxReconnectAttempts = connection.DefaultMaxRetries
	}
	if cfg.Realtime.QuietPeriod <= 0 {
		cfg.Realtime.QuietPeriod = coalesce.DefaultQuietPeriod
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	for i := range cfg.Feeds {
		f := &cfg.Feeds[i]
		if f.Schema == "" {
			f.Schema = feed.DefaultSchema
		}
		if f.KeyField == "" {
			f.KeyField = feed.KeyFieldFor(f.Resource)
		}
		if f.Query == "" && f.Resource == feed.ResourceFundingRates {
			f.Query = "SELECT * FROM " + pgx.Identifier{f.Schema, LatestFundingRatesFunction}.Sanitize() + "()"
		}
		if f.Enabled == nil {
			f.Enabled = boolPtr(true)
		}
		if f.QuietPeriod <= 0 {
			f.QuietPeriod = cfg.Realtime.QuietPeriod
		}
		if f.ReconnectDelay <= 0 {
			f.ReconnectDelay = cfg.Realtime.ReconnectDelay
		}
		if f.MaxReconnectAttempts == 0 {
			f.MaxReconnectAttempts = cfg.Realtime.MaxReconnectAttempts
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportMemory:
	case TransportPostgres:
		if c.Transport.DSN == "" {
			return &LoadError{Message: "postgres transport requires transport.dsn or " + EnvDatabaseURL}
		}
	default:
		return &LoadError{Message: fmt.Sprintf("unknown transport kind %q", c.Transport.Kind)}
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return &LoadError{Message: "logging.level", Cause: err}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return &LoadError{Message: fmt.Sprintf("unknown logging.format %q", c.Logging.Format)}
	}

	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		where := fmt.Sprintf("feeds[%d]", i)
		if f.Resource == "" {
			return &LoadError{Message: where + ": missing resource"}
		}
		id := f.Resource + "?" + f.Filter
		if seen[id] {
			return &LoadError{Message: fmt.Sprintf("%s: duplicate feed %s", where, f.Resource)}
		}
		seen[id] = true
		if _, err := f.SubscriptionConfig(); err != nil {
			return &LoadError{Message: where, Cause: err}
		}
		if _, err := merge.ParseInsertPolicy(f.Insert); err != nil {
			return &LoadError{Message: where, Cause: err}
		}
	}
	return nil
}

// KeepAlive returns the transport keep-alive settings.
func (c *Config) KeepAlive() transport.KeepAliveConfig {
	return transport.KeepAliveConfig{
		Interval:       c.Transport.HeartbeatInterval,
		PingTimeout:    c.Transport.PingTimeout,
		MaxMissedPings: c.Transport.MaxMissedPings,
	}
}

// Feed returns the first feed for resource.
func (c *Config) Feed(resource string) (FeedConfig, bool) {
	for _, f := range c.Feeds {
		if f.Resource == resource {
			return f, true
		}
	}
	return FeedConfig{}, false
}

// IsEnabled reports whether the feed should connect.
func (f FeedConfig) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

// InsertPolicy returns the parsed insert policy.
func (f FeedConfig) InsertPolicy() merge.InsertPolicy {
	p, _ := merge.ParseInsertPolicy(f.Insert)
	return p
}

// SubscriptionConfig converts the feed entry into a subscription config.
func (f FeedConfig) SubscriptionConfig() (subscription.Config, error) {
	mask, err := feed.ParseEventMask(f.Events)
	if err != nil {
		return subscription.Config{}, err
	}
	cfg := subscription.Config{
		Resource:  f.Resource,
		Schema:    f.Schema,
		Events:    mask,
		Predicate: f.Filter,
		Enabled:   f.IsEnabled(),
		KeyField:  f.KeyField,
		Policy: connection.Policy{
			BaseDelay:  f.ReconnectDelay,
			MaxRetries: f.MaxReconnectAttempts,
		},
	}
	if err := cfg.Validate(); err != nil {
		return subscription.Config{}, err
	}
	return cfg, nil
}

// ParseLevel parses a slog level name.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

func boolPtr(b bool) *bool {
	return &b
}
