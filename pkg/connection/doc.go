// Package connection provides the reconnection policy and connection status
// shared by every live subscription.
//
// This package handles:
//   - Linear backoff between reconnection attempts
//   - Bounding automatic retries
//   - Connection status values and their display labels
//
// # Reconnection Strategy
//
// When a channel fails, the subscription waits before reopening it:
//
//  1. Attempt n waits BaseDelay * n (1s, 2s, 3s, 4s, 5s by default)
//  2. After MaxRetries failed attempts no further retry is scheduled
//  3. The counter resets to zero once a channel opens successfully
//
// There is no upper delay cap beyond the attempt limit. Exhausted retries
// leave the subscription in ERRORED; the application decides whether to
// offer a manual reconnect.
//
// # Status
//
// A status is owned by exactly one subscription and is read-only to
// callers. CLOSED is terminal. DISABLED is reported by subscriptions whose
// feed is switched off and never touch the transport.
package connection
