package livetable

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/fundingarb/livesync/pkg/connection"
	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/merge"
	"github.com/fundingarb/livesync/pkg/subscription"
	"github.com/fundingarb/livesync/pkg/transport"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticLoader(rows ...feed.Record) Loader {
	return LoaderFunc(func(_ context.Context, _ string) ([]feed.Record, error) {
		return rows, nil
	})
}

func coins(items []feed.Record) []string {
	out := make([]string, 0, len(items))
	for _, r := range items {
		out = append(out, feed.FormatValue(r["coin"]))
	}
	return out
}

func TestTableLoadSortsAndDedupes(t *testing.T) {
	table := New(feed.ResourceFundingRates,
		WithLoader(staticLoader(
			feed.Record{"coin": "ETH", "hyperliquid_rate": 0.01},
			feed.Record{"coin": "BTC", "hyperliquid_rate": 0.03},
			feed.Record{"coin": "SOL"},
			feed.Record{"coin": "ETH", "hyperliquid_rate": 0.02},
		)),
		WithSort(Descending("hyperliquid_rate")))

	require.NoError(t, table.Load(context.Background()))

	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, coins(table.Snapshot()))
	eth, ok := table.Get("ETH")
	require.True(t, ok)
	assert.Equal(t, 0.02, eth["hyperliquid_rate"])
	assert.Equal(t, uint64(1), table.Version())
	assert.False(t, table.LoadedAt().IsZero())
}

func TestTableLoadError(t *testing.T) {
	boom := errors.New("boom")
	table := New(feed.ResourcePositions, WithLoader(LoaderFunc(
		func(context.Context, string) ([]feed.Record, error) { return nil, boom })))

	err := table.Load(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, table.Len())

	// No loader is not an error.
	assert.NoError(t, New(feed.ResourcePositions).Load(context.Background()))
}

func TestTableApplyReplacesSlice(t *testing.T) {
	table := New(feed.ResourcePositions)

	assert.True(t, table.Apply(feed.Created(feed.ResourcePositions, feed.Record{"id": 1, "size": 1})))
	before := table.Snapshot()

	assert.True(t, table.Apply(feed.Changed(feed.ResourcePositions, feed.Record{"id": 1}, feed.Record{"id": 1, "size": 2})))
	after := table.Snapshot()

	assert.Equal(t, 1, before[0]["size"], "earlier snapshot changed")
	assert.Equal(t, 2, after[0]["size"])

	assert.False(t, table.Apply(feed.Removed(feed.ResourcePositions, feed.Record{"id": 99})), "no-op reported as change")
	assert.Equal(t, uint64(2), table.Version())
}

func TestTableEnrich(t *testing.T) {
	table := New(feed.ResourceFundingRates, WithLoader(staticLoader(
		feed.Record{"coin": "BTC", "hyperliquid_rate": 0.01},
	)))
	require.NoError(t, table.Load(context.Background()))

	assert.True(t, table.Enrich("BTC", feed.Record{"avg_7d": 0.015}))
	assert.False(t, table.Enrich("DOGE", feed.Record{"avg_7d": 0.5}), "absent key inserted")
	assert.Equal(t, 1, table.Len())

	// A later feed update must keep the enriched field.
	table.Apply(feed.Changed(feed.ResourceFundingRates,
		feed.Record{"coin": "BTC"}, feed.Record{"coin": "BTC", "hyperliquid_rate": 0.02}))

	btc, ok := table.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, 0.015, btc["avg_7d"])
	assert.Equal(t, 0.02, btc["hyperliquid_rate"])

	// And enrichment keeps feed fields.
	table.Enrich("BTC", feed.Record{"avg_30d": 0.011})
	btc, _ = table.Get("BTC")
	assert.Equal(t, 0.02, btc["hyperliquid_rate"])
	assert.Equal(t, 0.015, btc["avg_7d"])
}

func TestTableEnrichDefaultKeyField(t *testing.T) {
	table := New(feed.ResourcePositions, WithKeyField(""), WithLoader(staticLoader(
		feed.Record{"id": "p1", "pnl": 1.5},
	)))
	require.NoError(t, table.Load(context.Background()))
	assert.Equal(t, feed.DefaultKeyField, table.KeyField())

	require.True(t, table.Enrich("p1", feed.Record{"note": "hedged"}))

	row, ok := table.Get("p1")
	require.True(t, ok)
	assert.Equal(t, feed.Record{"id": "p1", "pnl": 1.5, "note": "hedged"}, row)
}

func TestTableOnUpdate(t *testing.T) {
	table := New(feed.ResourcePositionAlerts, WithInsertPolicy(merge.InsertAppend))
	var mu sync.Mutex
	var updates []Update
	table.OnUpdate(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	})

	table.Apply(feed.Created(feed.ResourcePositionAlerts, feed.Record{"id": "a"}))
	table.Apply(feed.Created(feed.ResourcePositionAlerts, feed.Record{"id": "b"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 2)
	assert.Equal(t, uint64(2), updates[1].Version)
	require.NotNil(t, updates[1].Event)
	assert.Equal(t, feed.KindCreated, updates[1].Event.Kind)
	assert.Equal(t, "b", updates[1].Items[1]["id"], "append policy")
}

func TestTableBind(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hub := transport.NewHub(transport.WithAutoOpen())
	m := subscription.NewManager(hub, subscription.WithManagerClock(clock))
	defer m.Close()

	table := New(feed.ResourcePositions)
	h, err := table.Bind(m, subscription.DefaultConfig(feed.ResourcePositions))
	require.NoError(t, err)
	assert.Same(t, h, table.Handle())
	assert.Equal(t, connection.StatusConnected, h.Status())
	assert.Equal(t, "id", h.Config().KeyField)

	hub.Emit(feed.Created(feed.ResourcePositions, feed.Record{"id": "p1", "status": "open"}))
	hub.Emit(feed.Created(feed.ResourcePositions, feed.Record{"id": "p2", "status": "open"}))
	hub.Emit(feed.Changed(feed.ResourcePositions, feed.Record{"id": "p1"}, feed.Record{"id": "p1", "pnl": 12.5}))
	hub.Emit(feed.Removed(feed.ResourcePositions, feed.Record{"id": "p2"}))

	require.Equal(t, 1, table.Len())
	p1, _ := table.Get("p1")
	assert.Equal(t, "open", p1["status"])
	assert.Equal(t, 12.5, p1["pnl"])

	table.Close()
	assert.Nil(t, table.Handle())
	assert.Equal(t, connection.StatusClosed, h.Status())

	// Closed table keeps its contents and ignores the feed.
	hub.Emit(feed.Created(feed.ResourcePositions, feed.Record{"id": "p3"}))
	assert.Equal(t, 1, table.Len())
}

func TestTableBindWrongResource(t *testing.T) {
	m := subscription.NewManager(transport.NewHub())
	defer m.Close()

	table := New(feed.ResourcePositions)
	_, err := table.Bind(m, subscription.DefaultConfig(feed.ResourceCoins))
	assert.ErrorIs(t, err, subscription.ErrInvalidConfig)
}

func TestDescending(t *testing.T) {
	less := Descending("rate")
	assert.True(t, less(feed.Record{"rate": 2}, feed.Record{"rate": 1.5}))
	assert.False(t, less(feed.Record{"rate": 1}, feed.Record{"rate": 10}))
	assert.True(t, less(feed.Record{"rate": 1}, feed.Record{}), "missing sorts last")
	assert.False(t, less(feed.Record{}, feed.Record{"rate": 1}))
	assert.True(t, less(feed.Record{"rate": json.Number("0.1")}, feed.Record{"rate": json.Number("0.05")}))
}

func TestTableLoadSortsDecodedNumbers(t *testing.T) {
	rows := make([]feed.Record, 0, 3)
	for _, raw := range []string{
		`{"coin": "B", "hyperliquid_rate": 0.05}`,
		`{"coin": "C", "hyperliquid_rate": -0.2}`,
		`{"coin": "A", "hyperliquid_rate": 0.1}`,
	} {
		r, err := feed.DecodeRecord([]byte(raw))
		require.NoError(t, err)
		rows = append(rows, r)
	}

	table := New(feed.ResourceFundingRates,
		WithLoader(staticLoader(rows...)),
		WithSort(Descending("hyperliquid_rate")))
	require.NoError(t, table.Load(context.Background()))

	assert.Equal(t, []string{"A", "B", "C"}, coins(table.Snapshot()))
}
