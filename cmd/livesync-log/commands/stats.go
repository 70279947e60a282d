package commands

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fundingarb/livesync/pkg/log"
	"github.com/olekukonko/tablewriter"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	Header           *log.Header
	TotalEvents      int
	EventsByLayer    map[log.Layer]int
	EventsByCategory map[log.Category]int
	Resources        map[string]*ResourceStats
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// ResourceStats holds statistics for one feed.
type ResourceStats struct {
	Subscriptions map[string]bool
	Transitions   int
	Changes       int
	Summaries     int
	Coalesced     int
	Errors        int
	Retries       int
	LastState     string
	LastSeen      time.Time
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats, err := collectStats(reader)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func collectStats(reader *log.Reader) (*Stats, error) {
	stats := &Stats{
		EventsByLayer:    make(map[log.Layer]int),
		EventsByCategory: make(map[log.Category]int),
		Resources:        make(map[string]*ResourceStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		rs, ok := stats.Resources[event.Resource]
		if !ok {
			rs = &ResourceStats{Subscriptions: make(map[string]bool)}
			stats.Resources[event.Resource] = rs
		}
		if event.SubscriptionID != "" {
			rs.Subscriptions[event.SubscriptionID] = true
		}
		if event.Timestamp.After(rs.LastSeen) {
			rs.LastSeen = event.Timestamp
		}

		switch {
		case event.StateChange != nil:
			rs.Transitions++
			rs.LastState = event.StateChange.NewState
			if event.StateChange.RetryIn != nil {
				rs.Retries++
			}
		case event.Change != nil:
			rs.Changes++
		case event.Summary != nil:
			rs.Summaries++
			rs.Coalesced += event.Summary.Count
		case event.Error != nil:
			rs.Errors++
			stats.Errors++
		}
	}
	if h, ok := reader.Header(); ok {
		stats.Header = &h
	}
	return stats, nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== livesync Trace Statistics ===")
	fmt.Fprintln(w)

	if stats.Header != nil {
		fmt.Fprintf(w, "Format:     %s v%d, created %s\n",
			stats.Header.Format, stats.Header.Version, stats.Header.Created.Format(time.RFC3339))
	}

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerSubscription, log.LayerCoalescer, log.LayerCollection} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryState, log.CategoryChange, log.CategorySummary, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Resources) > 0 {
		names := make([]string, 0, len(stats.Resources))
		for name := range stats.Resources {
			names = append(names, name)
		}
		sort.Strings(names)

		table := tablewriter.NewWriter(w)
		table.Header("Resource", "Subs", "Transitions", "Retries", "Changes", "Summaries", "Coalesced", "Errors", "Last state")
		for _, name := range names {
			rs := stats.Resources[name]
			label := name
			if label == "" {
				label = "-"
			}
			table.Append(
				label,
				strconv.Itoa(len(rs.Subscriptions)),
				strconv.Itoa(rs.Transitions),
				strconv.Itoa(rs.Retries),
				strconv.Itoa(rs.Changes),
				strconv.Itoa(rs.Summaries),
				strconv.Itoa(rs.Coalesced),
				strconv.Itoa(rs.Errors),
				rs.LastState,
			)
		}
		table.Render()
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
