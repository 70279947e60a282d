// Package feed defines the change notifications carried by a live data feed.
//
// A feed is a named, filterable stream of row-level notifications for one
// logical resource (for example "positions" or "funding_rates"). Every
// notification is parsed into a ChangeEvent before anything else in the
// system sees it.
//
// # Event Shape
//
// Exactly one of NewValue/OldValue is populated per kind:
//
//   - CREATED carries NewValue only
//   - CHANGED carries both (OldValue identifies the prior key)
//   - REMOVED carries OldValue only
//
// ReceivedAt is stamped by the subscription on arrival. It is local time,
// not server time, and drives "last update" displays and staleness checks.
//
// # Wire Format
//
// Payloads arrive as JSON objects:
//
//	{"type": "UPDATE", "table": "positions", "schema": "public",
//	 "new": {"id": 7, "pnl": 12.5}, "old": {"id": 7}}
//
// "eventType" is accepted as an alias for "type". The hosted backend sends
// an empty "new" object on DELETE and an empty "old" object on INSERT; both
// are treated as absent. A CBOR encoding of ChangeEvent is also accepted.
//
// # Filters
//
// Per-subscription predicates use the column=op.value form:
//
//	status=eq.open
//	coin=in.(BTC,ETH)
//	pnl=gt.0
package feed
