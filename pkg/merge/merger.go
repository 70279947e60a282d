package merge

import (
	"fmt"
	"strings"

	"github.com/fundingarb/livesync/pkg/feed"
)

// InsertPolicy decides where new records go.
type InsertPolicy uint8

const (
	// InsertPrepend puts new records first (newest-first lists).
	InsertPrepend InsertPolicy = iota
	// InsertAppend puts new records last.
	InsertAppend
)

// String returns the policy name.
func (p InsertPolicy) String() string {
	switch p {
	case InsertPrepend:
		return "prepend"
	case InsertAppend:
		return "append"
	default:
		return "unknown"
	}
}

// ParseInsertPolicy parses "prepend" or "append". Empty means prepend.
func ParseInsertPolicy(s string) (InsertPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "prepend":
		return InsertPrepend, nil
	case "append":
		return InsertAppend, nil
	default:
		return InsertPrepend, fmt.Errorf("unknown insert policy %q", s)
	}
}

// Merger applies change events to a collection keyed by KeyField.
// The zero value keys on feed.DefaultKeyField and prepends.
type Merger struct {
	KeyField string
	Insert   InsertPolicy
}

// New returns a Merger for keyField.
func New(keyField string, insert InsertPolicy) Merger {
	return Merger{KeyField: keyField, Insert: insert}
}

// Field returns the identity field, defaulting to feed.DefaultKeyField.
func (m Merger) Field() string {
	if m.KeyField == "" {
		return feed.DefaultKeyField
	}
	return m.KeyField
}

// KeyOf returns the canonical key of r, or false if r has no usable key.
func (m Merger) KeyOf(r feed.Record) (string, bool) {
	v, ok := r.Lookup(m.Field())
	if !ok || v == nil {
		return "", false
	}
	key := feed.FormatValue(v)
	if key == "" {
		return "", false
	}
	return key, true
}

// Index returns the position of the record with key, or -1.
func (m Merger) Index(items []feed.Record, key string) int {
	for i, r := range items {
		if k, ok := m.KeyOf(r); ok && k == key {
			return i
		}
	}
	return -1
}

// Apply returns the collection that results from applying ev to items.
// When ev changes nothing, items is returned as is.
func (m Merger) Apply(items []feed.Record, ev feed.ChangeEvent) []feed.Record {
	switch ev.Kind {
	case feed.KindCreated:
		key, ok := m.KeyOf(ev.NewValue)
		if !ok {
			return items
		}
		// Duplicate creates merge into the existing record.
		if i := m.Index(items, key); i >= 0 {
			return m.replace(items, i, mergeFields(items[i], ev.NewValue), key)
		}
		return m.insert(items, ev.NewValue.Clone())

	case feed.KindChanged:
		return m.applyChanged(items, ev)

	case feed.KindRemoved:
		key, ok := m.KeyOf(ev.OldValue)
		if !ok {
			return items
		}
		i := m.Index(items, key)
		if i < 0 {
			return items
		}
		out := make([]feed.Record, 0, len(items)-1)
		out = append(out, items[:i]...)
		return append(out, items[i+1:]...)
	}
	return items
}

// ApplyAll applies events in order.
func (m Merger) ApplyAll(items []feed.Record, events ...feed.ChangeEvent) []feed.Record {
	for _, ev := range events {
		items = m.Apply(items, ev)
	}
	return items
}

// Dedupe returns items with at most one record per key. Later duplicates
// are merged into the first occurrence. Records without a key are kept.
func (m Merger) Dedupe(items []feed.Record) []feed.Record {
	out := make([]feed.Record, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, r := range items {
		key, ok := m.KeyOf(r)
		if !ok {
			out = append(out, r)
			continue
		}
		if i, dup := seen[key]; dup {
			out[i] = mergeFields(out[i], r)
			continue
		}
		seen[key] = len(out)
		out = append(out, r)
	}
	return out
}

func (m Merger) applyChanged(items []feed.Record, ev feed.ChangeEvent) []feed.Record {
	oldKey, hasOld := m.KeyOf(ev.OldValue)
	newKey, hasNew := m.KeyOf(ev.NewValue)
	switch {
	case !hasOld && !hasNew:
		return items
	case !hasNew:
		newKey = oldKey
	case !hasOld:
		oldKey = newKey
	}

	i := m.Index(items, oldKey)
	if i < 0 && newKey != oldKey {
		i = m.Index(items, newKey)
	}
	if i >= 0 {
		return m.replace(items, i, mergeFields(items[i], ev.NewValue), newKey)
	}

	// Unknown key: the feed may have missed the insert.
	rec := ev.NewValue.Clone()
	if rec == nil {
		rec = feed.Record{}
	}
	if !hasNew {
		rec[m.Field()], _ = ev.OldValue.Lookup(m.Field())
	}
	return m.insert(items, rec)
}

// replace returns a copy of items with items[i] replaced by rec. Any other
// record already holding key is dropped so keys stay unique.
func (m Merger) replace(items []feed.Record, i int, rec feed.Record, key string) []feed.Record {
	out := make([]feed.Record, 0, len(items))
	for j, r := range items {
		if j == i {
			out = append(out, rec)
			continue
		}
		if k, ok := m.KeyOf(r); ok && k == key {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (m Merger) insert(items []feed.Record, rec feed.Record) []feed.Record {
	out := make([]feed.Record, 0, len(items)+1)
	if m.Insert == InsertAppend {
		out = append(out, items...)
		return append(out, rec)
	}
	out = append(out, rec)
	return append(out, items...)
}

// mergeFields overlays patch onto a copy of base.
func mergeFields(base, patch feed.Record) feed.Record {
	out := base.Clone()
	if out == nil {
		out = make(feed.Record, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
