package livetable

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/log"
	"github.com/fundingarb/livesync/pkg/merge"
	"github.com/fundingarb/livesync/pkg/subscription"
)

// Loader fetches the initial snapshot of a resource.
// transport.PostgresLoader implements it.
type Loader interface {
	Load(ctx context.Context, resource string) ([]feed.Record, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, resource string) ([]feed.Record, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, resource string) ([]feed.Record, error) {
	return f(ctx, resource)
}

// Update describes one change to a table.
type Update struct {
	Resource string

	// Items is the table contents after the update.
	Items []feed.Record

	// Event is the applied event; nil for a snapshot load.
	Event *feed.ChangeEvent

	Version uint64
}

// Option configures a Table.
type Option func(*Table)

// WithKeyField sets the record identity field.
func WithKeyField(field string) Option {
	return func(t *Table) { t.merger.KeyField = field }
}

// WithInsertPolicy sets where new records are placed.
func WithInsertPolicy(p merge.InsertPolicy) Option {
	return func(t *Table) { t.merger.Insert = p }
}

// WithLoader sets the snapshot loader.
func WithLoader(l Loader) Option {
	return func(t *Table) { t.loader = l }
}

// WithSort orders the snapshot after Load. Live updates are not re-sorted.
func WithSort(less func(a, b feed.Record) bool) Option {
	return func(t *Table) { t.less = less }
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) { t.logger = logger }
}

// WithProtocolLogger sets the trace logger.
func WithProtocolLogger(logger log.Logger) Option {
	return func(t *Table) { t.protocolLogger = logger }
}

// Table is a live, keyed collection for one resource.
// It is safe for concurrent use.
type Table struct {
	resource       string
	merger         merge.Merger
	loader         Loader
	less           func(a, b feed.Record) bool
	logger         *slog.Logger
	protocolLogger log.Logger

	mu        sync.RWMutex
	items     []feed.Record
	version   uint64
	handle    *subscription.Handle
	listeners []func(Update)
	loadedAt  time.Time
}

// New creates an empty table for resource keyed on
// feed.KeyFieldFor(resource).
func New(resource string, opts ...Option) *Table {
	t := &Table{
		resource: resource,
		merger:   merge.New(feed.KeyFieldFor(resource), merge.InsertPrepend),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Resource returns the table's resource.
func (t *Table) Resource() string {
	return t.resource
}

// KeyField returns the record identity field.
func (t *Table) KeyField() string {
	return t.merger.Field()
}

// OnUpdate adds a listener called after every change, outside the lock.
func (t *Table) OnUpdate(fn func(Update)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Load replaces the contents with a fresh snapshot from the loader.
// Duplicate keys in the snapshot are merged.
func (t *Table) Load(ctx context.Context) error {
	if t.loader == nil {
		return nil
	}
	rows, err := t.loader.Load(ctx, t.resource)
	if err != nil {
		return fmt.Errorf("livetable: load %s: %w", t.resource, err)
	}
	rows = t.merger.Dedupe(rows)
	if t.less != nil {
		sort.SliceStable(rows, func(i, j int) bool { return t.less(rows[i], rows[j]) })
	}

	t.mu.Lock()
	t.items = rows
	t.version++
	t.loadedAt = time.Now()
	u := t.updateLocked(nil)
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Debug("Table: loaded", "resource", t.resource, "rows", len(rows))
	}
	t.publish(u)
	return nil
}

// Apply merges ev into the table. It reports whether the contents changed.
func (t *Table) Apply(ev feed.ChangeEvent) bool {
	t.mu.Lock()
	next := t.merger.Apply(t.items, ev)
	if sameSlice(next, t.items) {
		t.mu.Unlock()
		return false
	}
	t.items = next
	t.version++
	u := t.updateLocked(&ev)
	t.mu.Unlock()

	t.trace(ev)
	t.publish(u)
	return true
}

// Enrich merges fields into the record with key. Absent keys are ignored,
// so a late enrichment never resurrects a removed record.
func (t *Table) Enrich(key string, fields feed.Record) bool {
	field := t.merger.Field()
	t.mu.RLock()
	i := t.merger.Index(t.items, key)
	var keyValue any
	if i >= 0 {
		keyValue = t.items[i][field]
	}
	t.mu.RUnlock()
	if i < 0 {
		return false
	}

	patch := fields.Clone()
	if patch == nil {
		patch = feed.Record{}
	}
	patch[field] = keyValue
	ev := feed.Changed(t.resource, feed.Record{field: keyValue}, patch)

	// Re-check under the write lock: the record may have been removed.
	t.mu.Lock()
	if t.merger.Index(t.items, key) < 0 {
		t.mu.Unlock()
		return false
	}
	next := t.merger.Apply(t.items, ev)
	t.items = next
	t.version++
	u := t.updateLocked(&ev)
	t.mu.Unlock()

	t.publish(u)
	return true
}

// Snapshot returns the current contents. The slice and its records must
// not be modified.
func (t *Table) Snapshot() []feed.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.items
}

// Get returns a copy of the record with key.
func (t *Table) Get(key string) (feed.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i := t.merger.Index(t.items, key)
	if i < 0 {
		return nil, false
	}
	return t.items[i].Clone(), true
}

// Len returns the number of records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// LoadedAt returns the time of the last successful Load.
func (t *Table) LoadedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loadedAt
}

// Version increases with every change.
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Callbacks returns subscription callbacks that apply every event.
func (t *Table) Callbacks() subscription.Callbacks {
	apply := func(ev feed.ChangeEvent) { t.Apply(ev) }
	return subscription.Callbacks{
		OnCreated: apply,
		OnChanged: apply,
		OnRemoved: apply,
	}
}

// Bind subscribes the table to its feed through m.
func (t *Table) Bind(m *subscription.Manager, cfg subscription.Config, opts ...subscription.SubscribeOption) (*subscription.Handle, error) {
	if cfg.Resource == "" {
		cfg.Resource = t.resource
	}
	if cfg.Resource != t.resource {
		return nil, fmt.Errorf("%w: table %s bound to %s", subscription.ErrInvalidConfig, t.resource, cfg.Resource)
	}
	if cfg.KeyField == "" {
		cfg.KeyField = t.merger.Field()
	}

	h, err := m.Subscribe(cfg, t.Callbacks(), opts...)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	prev := t.handle
	t.handle = h
	t.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
	return h, nil
}

// Handle returns the bound subscription handle, or nil.
func (t *Table) Handle() *subscription.Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handle
}

// Close unsubscribes the bound handle. The contents stay readable.
func (t *Table) Close() {
	t.mu.Lock()
	h := t.handle
	t.handle = nil
	t.mu.Unlock()

	if h != nil {
		h.Unsubscribe()
	}
}

func (t *Table) updateLocked(ev *feed.ChangeEvent) Update {
	return Update{
		Resource: t.resource,
		Items:    t.items,
		Event:    ev,
		Version:  t.version,
	}
}

func (t *Table) publish(u Update) {
	t.mu.RLock()
	listeners := t.listeners
	t.mu.RUnlock()

	for _, fn := range listeners {
		fn(u)
	}
}

func (t *Table) trace(ev feed.ChangeEvent) {
	if t.protocolLogger == nil {
		return
	}
	data := &log.ChangeEventData{Kind: ev.Kind.String()}
	if key, ok := ev.Key(t.merger.Field()); ok {
		data.Key = feed.FormatValue(key)
	}
	ts := ev.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	t.protocolLogger.Log(log.Event{
		Timestamp: ts,
		Resource:  t.resource,
		Layer:     log.LayerCollection,
		Category:  log.CategoryChange,
		Change:    data,
	})
}

// sameSlice reports whether a and b are the same slice value.
func sameSlice(a, b []feed.Record) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}

// Descending orders records by field, largest first. Numeric values
// compare numerically; records missing the field sort last.
func Descending(field string) func(a, b feed.Record) bool {
	return func(a, b feed.Record) bool {
		av, aok := number(a[field])
		bv, bok := number(b[field])
		switch {
		case aok && bok:
			return av > bv
		case aok != bok:
			return aok
		default:
			return feed.FormatValue(a[field]) > feed.FormatValue(b[field])
		}
	}
}

func number(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(feed.FormatValue(v), 64)
	return f, err == nil
}
