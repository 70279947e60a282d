// Package subscription keeps one live feed connected and turns its raw
// payloads into typed change events.
//
// # Subscription
//
// A Subscription owns at most one transport channel at a time and moves
// through these states:
//
//	Idle -> Connecting -> Connected
//	Connected -> Disconnected          (clean close, no retry)
//	Connecting|Connected -> Errored    (failure, retry scheduled)
//	Errored -> Connecting              (retry timer fired)
//	any -> Closed                      (Close, terminal)
//
// A disabled config reports Disabled and never touches the transport.
//
// Retries follow a linear connection.Policy: the n-th consecutive failure
// waits BaseDelay*n before the next attempt, and after MaxRetries failed
// retries the subscription stays Errored until the caller reconnects it.
// A successful open resets the counter.
//
// Every channel attempt carries a generation number. Callbacks from a
// channel that has since been superseded or closed are ignored, so a
// closed Subscription never reports Connected or delivers events.
//
// Malformed payloads are dropped, counted and logged (rate limited); they
// never change the connection state.
//
// # Manager
//
// Manager is the façade used by application code. Subscribe returns a
// Handle exposing status, last event time, a status stream and
// Unsubscribe. Each Handle owns its own Subscription and optional
// coalesce.Coalescer; handles for the same resource are independent.
//
// Typed callbacks (OnCreated, OnChanged, OnRemoved) run on the transport's
// delivery goroutine, one call per event. They can be replaced at any time
// with Handle.SetCallbacks without reopening the channel.
package subscription
