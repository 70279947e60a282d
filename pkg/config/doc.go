// Package config loads the livesync configuration.
//
// Load reads an optional .env file, then the YAML file, then applies
// environment overrides and defaults, and finally validates the result:
//
//	LIVESYNC_DATABASE_URL  overrides transport.dsn
//	LIVESYNC_TRANSPORT     overrides transport.kind
//	LIVESYNC_LOG_LEVEL     overrides logging.level
//	LIVESYNC_LOG_FORMAT    overrides logging.format
//	LIVESYNC_TRACE_FILE    overrides logging.trace_file
//
// Without a file, Default provides the seven dashboard feeds on the
// in-memory transport.
package config
