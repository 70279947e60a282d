// Package log provides structured trace capture for live subscriptions.
//
// This package defines the Logger interface and Event types for capturing
// sync-level events at multiple layers (transport, subscription, coalescer,
// collection). It is separate from operational logging (slog) - trace
// capture provides a complete machine-readable record of what every
// subscription saw and did.
//
// # Basic Usage
//
// Components accept a Logger through their options:
//
//	// For development: log to console via slog
//	subscription.WithProtocolLogger(log.NewSlogAdapter(slog.Default()))
//
//	// For production: write to binary file
//	fl, _ := log.NewFileLogger("/var/log/livesync/sync.slog")
//
//	// Both: use MultiLogger
//	log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
//   - State: a subscription status transition (StateChangeEvent)
//   - Change: an accepted change event (ChangeEventData)
//   - Summary: a coalescer summary (SummaryEvent)
//   - Error: a dropped payload or a channel failure (ErrorEventData)
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with integer keys. The
// livesync-log CLI tool provides viewing, statistics and export.
package log
