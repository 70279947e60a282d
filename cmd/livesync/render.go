package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fundingarb/livesync/pkg/feed"
	"github.com/fundingarb/livesync/pkg/subscription"
	"github.com/olekukonko/tablewriter"
)

// maxColumns bounds the columns shown by renderRows.
const maxColumns = 8

// renderStatus prints one line per subscription.
func renderStatus(w io.Writer, handles []*subscription.Handle) {
	if len(handles) == 0 {
		fmt.Fprintln(w, "No subscriptions")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Resource", "Filter", "Status", "Indicator", "Attempts", "Received", "Dropped", "Last event", "Error")
	for _, h := range handles {
		cfg := h.Config()
		lastErr := ""
		if err := h.LastError(); err != nil {
			lastErr = err.Error()
		}
		table.Append(
			h.Resource(),
			cfg.Predicate,
			h.Status().String(),
			h.Indicator(),
			strconv.Itoa(h.Attempts()),
			strconv.Itoa(h.Received()),
			strconv.Itoa(h.Dropped()),
			formatTime(h.LastEventAt()),
			lastErr,
		)
	}
	table.Render()
}

// renderRows prints up to limit records. The key field comes first, the
// remaining columns are sorted by name.
func renderRows(w io.Writer, keyField string, rows []feed.Record, limit int) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No rows")
		return
	}
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}

	cols := columns(keyField, rows[:limit])
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}

	table := tablewriter.NewWriter(w)
	table.Header(header...)
	for _, r := range rows[:limit] {
		cells := make([]string, len(cols))
		for i, c := range cols {
			if v, ok := r[c]; ok {
				cells[i] = feed.FormatValue(v)
			}
		}
		table.Append(cells)
	}
	table.Render()

	if limit < len(rows) {
		fmt.Fprintf(w, "... %d more\n", len(rows)-limit)
	}
}

func columns(keyField string, rows []feed.Record) []string {
	seen := map[string]bool{keyField: true}
	var rest []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)
	if len(rest) > maxColumns-1 {
		rest = rest[:maxColumns-1]
	}
	return append([]string{keyField}, rest...)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.TimeOnly)
}
