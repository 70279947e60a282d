// Package livetable keeps an in-memory copy of one resource in sync with
// its change feed.
//
// A Table loads an initial snapshot through a Loader, then applies every
// change event delivered by a subscription.Handle through a merge.Merger.
// Out-of-band enrichment (for example historical averages fetched
// separately) goes through Enrich, which uses the same field-level merge,
// so feed updates and enrichment never overwrite each other's fields.
//
// Each update replaces the table's slice; a caller holding an earlier
// Snapshot keeps a consistent, unchanged view.
package livetable
