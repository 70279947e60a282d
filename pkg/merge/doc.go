// Package merge applies change events to client-held ordered collections.
//
// Merger.Apply is pure: it never modifies the input slice or any record in
// it, and returns a new slice whenever the collection changes. Updates are
// field-level, so a partial payload leaves sibling fields (for example ones
// filled in by a separate enrichment fetch) untouched.
//
// Records are identified by a key field. Keys compare in canonical text form
// (see feed.FormatValue), so the JSON number 7 and the database integer 7
// address the same record.
package merge
