package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fundingarb/livesync/pkg/coalesce"
	"github.com/fundingarb/livesync/pkg/config"
	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/livetable"
	"github.com/fundingarb/livesync/pkg/log"
	"github.com/fundingarb/livesync/pkg/subscription"
	"github.com/fundingarb/livesync/pkg/transport"
)

var errUnknownFeed = errors.New("unknown feed")

// App wires configured feeds to live tables.
type App struct {
	cfg    *config.Config
	mgr    *subscription.Manager
	hub    *transport.Hub // nil unless the memory transport is used
	loader livetable.Loader
	logger *slog.Logger
	trace  log.Logger

	mu     sync.Mutex
	out    io.Writer
	tables map[string]*livetable.Table
	order  []string
}

// NewApp creates an app on tr. hub is set when tr is the in-memory hub
// so console commands can drive it.
func NewApp(cfg *config.Config, tr transport.Transport, hub *transport.Hub, loader livetable.Loader, logger *slog.Logger, trace log.Logger, out io.Writer) *App {
	opts := []subscription.ManagerOption{subscription.WithManagerLogger(logger)}
	if trace != nil {
		opts = append(opts, subscription.WithManagerProtocolLogger(trace))
	}
	a := &App{
		cfg:    cfg,
		mgr:    subscription.NewManager(tr, opts...),
		hub:    hub,
		loader: loader,
		logger: logger,
		trace:  trace,
		out:    out,
		tables: make(map[string]*livetable.Table),
	}
	a.mgr.OnStatusChange(a.printStatus)
	return a
}

// SetOutput redirects event output, e.g. through the console.
func (a *App) SetOutput(w io.Writer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.out = w
}

func (a *App) output() io.Writer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out
}

// Start loads snapshots and binds one table per configured feed. A failed
// snapshot is logged and the feed still goes live.
func (a *App) Start(ctx context.Context) error {
	for _, f := range a.cfg.Feeds {
		if err := a.startFeed(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) startFeed(ctx context.Context, f config.FeedConfig) error {
	subCfg, err := f.SubscriptionConfig()
	if err != nil {
		return fmt.Errorf("feed %s: %w", f.Resource, err)
	}

	opts := []livetable.Option{
		livetable.WithKeyField(f.KeyField),
		livetable.WithInsertPolicy(f.InsertPolicy()),
		livetable.WithLogger(a.logger),
	}
	if a.trace != nil {
		opts = append(opts, livetable.WithProtocolLogger(a.trace))
	}
	if a.loader != nil && f.IsEnabled() {
		opts = append(opts, livetable.WithLoader(a.loader))
	}
	if f.SortBy != "" {
		opts = append(opts, livetable.WithSort(livetable.Descending(f.SortBy)))
	}
	table := livetable.New(f.Resource, opts...)

	if err := table.Load(ctx); err != nil && a.logger != nil {
		a.logger.Warn("App: snapshot failed", "resource", f.Resource, "error", err)
	}

	var subOpts []subscription.SubscribeOption
	if f.Coalesce {
		resource := f.Resource
		subOpts = append(subOpts, subscription.WithCoalescer(f.QuietPeriod, func(s coalesce.Summary) {
			a.printSummary(resource, s)
		}))
	}
	if _, err := table.Bind(a.mgr, subCfg, subOpts...); err != nil {
		return fmt.Errorf("feed %s: %w", f.Resource, err)
	}

	a.mu.Lock()
	a.tables[f.Resource] = table
	a.order = append(a.order, f.Resource)
	a.mu.Unlock()
	return nil
}

// Table returns the table for resource.
func (a *App) Table(resource string) (*livetable.Table, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tables[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownFeed, resource)
	}
	return t, nil
}

// Resources returns the configured resources in configuration order.
func (a *App) Resources() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}

// Manager returns the subscription manager.
func (a *App) Manager() *subscription.Manager {
	return a.mgr
}

// Hub returns the in-memory transport, or nil.
func (a *App) Hub() *transport.Hub {
	return a.hub
}

// Close unsubscribes every feed.
func (a *App) Close() error {
	a.mu.Lock()
	tables := make([]*livetable.Table, 0, len(a.tables))
	for _, t := range a.tables {
		tables = append(tables, t)
	}
	a.mu.Unlock()

	for _, t := range tables {
		t.Close()
	}
	return a.mgr.Close()
}

func (a *App) printStatus(c subscription.StatusChange) {
	line := fmt.Sprintf("[STATUS] %s: %s -> %s", c.Resource, c.Old, c.New)
	if c.Err != nil {
		line += fmt.Sprintf(" (%v)", c.Err)
	}
	if c.RetryIn > 0 {
		line += fmt.Sprintf(", retry %d in %s", c.Attempt, c.RetryIn)
	}
	fmt.Fprintln(a.output(), line)
}

func (a *App) printSummary(resource string, s coalesce.Summary) {
	switch resource {
	case feed.ResourceFundingRates:
		fmt.Fprintf(a.output(), "[UPDATE] %d funding rates updated\n", s.Count)
	default:
		fmt.Fprintf(a.output(), "[UPDATE] %d %s changes\n", s.Count, resource)
	}
}
