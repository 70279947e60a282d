package main

import (
	"testing"

	"github.com/fundingarb/livesync/pkg/connection"
	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsole(t *testing.T) (*Console, *App, *syncBuffer) {
	t.Helper()
	app, _, _ := startApp(t, testConfig(t), nil)
	out := &syncBuffer{}
	app.SetOutput(out)
	return &Console{app: app, out: out}, app, out
}

func TestConsoleEmitAndShow(t *testing.T) {
	c, app, out := newTestConsole(t)

	assert.False(t, c.exec(`emit positions insert {"id": 7, "coin": "BTC", "size": 1.5}`))
	assert.Contains(t, out.String(), "Delivered to 1 channel(s)")

	tbl := mustTable(t, app, feed.ResourcePositions)
	require.Equal(t, 1, tbl.Len())

	c.exec(`emit positions update {"id": 7, "size": 2}`)
	row, ok := tbl.Get("7")
	require.True(t, ok)
	assert.EqualValues(t, 2, row["size"])
	assert.Equal(t, "BTC", row["coin"])

	out.Reset()
	c.exec("show positions")
	assert.Contains(t, out.String(), "positions (1 rows, Live")
	assert.Contains(t, out.String(), "BTC")

	c.exec(`emit positions delete {"id": 7}`)
	assert.Zero(t, tbl.Len())
}

func TestConsoleEnrich(t *testing.T) {
	c, app, out := newTestConsole(t)

	c.exec(`emit coins insert {"id": 1, "symbol": "BTC"}`)
	c.exec(`enrich coins 1 {"price": 65000}`)
	assert.Contains(t, out.String(), "Row enriched")

	row, ok := mustTable(t, app, feed.ResourceCoins).Get("1")
	require.True(t, ok)
	assert.EqualValues(t, 65000, row["price"])

	c.exec(`enrich coins 2 {"price": 1}`)
	assert.Contains(t, out.String(), "No row with id=2")
}

func TestConsoleFailAndReconnect(t *testing.T) {
	c, app, _ := newTestConsole(t)
	h := mustTable(t, app, feed.ResourceCoinMarkets).Handle()

	c.exec("drop coin_markets")
	assert.Equal(t, connection.StatusDisconnected, h.Status())

	c.exec("reconnect coin_markets")
	assert.Equal(t, connection.StatusConnected, h.Status())

	c.exec("fail coin_markets")
	assert.Equal(t, connection.StatusErrored, h.Status())
	assert.ErrorIs(t, h.LastError(), errManualFailure)
}

func TestConsoleClose(t *testing.T) {
	c, app, out := newTestConsole(t)

	c.exec("close positions")
	assert.Contains(t, out.String(), "Unsubscribed positions")
	assert.Nil(t, mustTable(t, app, feed.ResourcePositions).Handle())
	assert.Equal(t, 6, app.Manager().Count())

	c.exec("reconnect positions")
	assert.Contains(t, out.String(), "positions is not subscribed")
}

func TestConsoleErrors(t *testing.T) {
	c, _, out := newTestConsole(t)

	tests := []struct {
		line string
		want string
	}{
		{"bogus", "Unknown command: bogus"},
		{"show", "Usage: show <resource> [limit]"},
		{"show nope", "unknown feed: nope"},
		{"show coins x", "Invalid limit: x"},
		{"emit coins insert", "Usage: emit"},
		{"emit coins upsert {}", "invalid"},
		{"emit coins insert {oops", "Invalid JSON"},
		{"fail", "Usage: fail <resource>"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			assert.False(t, c.exec(tt.line))
			assert.Contains(t, out.String(), tt.want)
		})
	}

	assert.True(t, c.exec("exit"))
}

func TestSplitArgs(t *testing.T) {
	fields, rest, ok := splitArgs(`emit  coins insert {"a": 1}`, 3)
	require.True(t, ok)
	assert.Equal(t, []string{"emit", "coins", "insert"}, fields)
	assert.Equal(t, `{"a": 1}`, rest)

	_, _, ok = splitArgs("emit coins", 3)
	assert.False(t, ok)
}
