// Package commands implements the livesync-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fundingarb/livesync/pkg/log"
)

// timestampFormat is used by view and export.
const timestampFormat = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [sub:id] resource LAYER Type
	ts := event.Timestamp.UTC().Format(timestampFormat)
	fmt.Fprintf(w, "%s [sub:%s] %s %s %s\n",
		ts, shortenID(event.SubscriptionID), resourceLabel(event), event.Layer.String(), typeLabel(event))

	switch {
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Change != nil:
		formatChangeDetails(w, event.Change)
	case event.Summary != nil:
		formatSummaryDetails(w, event.Summary)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func typeLabel(event log.Event) string {
	switch {
	case event.StateChange != nil:
		return "State"
	case event.Change != nil:
		return event.Change.Kind
	case event.Summary != nil:
		return "Summary"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

func resourceLabel(event log.Event) string {
	if event.Resource == "" {
		return "-"
	}
	if event.Predicate != "" {
		return event.Resource + "?" + event.Predicate
	}
	return event.Resource
}

// shortenID returns the first 8 characters of a subscription ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
	if sc.Attempt > 0 {
		fmt.Fprintf(w, "  Attempt: %d", sc.Attempt)
		if sc.RetryIn != nil {
			fmt.Fprintf(w, "  Retry in: %s", formatDuration(*sc.RetryIn))
		}
		fmt.Fprintln(w)
	}
}

func formatChangeDetails(w io.Writer, c *log.ChangeEventData) {
	if c.Key != "" {
		fmt.Fprintf(w, "  Key: %s\n", c.Key)
	}
	if len(c.Fields) > 0 {
		fmt.Fprintf(w, "  Fields: %s\n", strings.Join(c.Fields, ", "))
	}
	if c.Size > 0 {
		fmt.Fprintf(w, "  Size: %d bytes\n", c.Size)
	}
}

func formatSummaryDetails(w io.Writer, s *log.SummaryEvent) {
	fmt.Fprintf(w, "  Count: %d\n", s.Count)
	if s.RepresentativeKind != "" {
		fmt.Fprintf(w, "  Latest: %s\n", s.RepresentativeKind)
	}
	if s.Window > 0 {
		fmt.Fprintf(w, "  Window: %s\n", formatDuration(s.Window))
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
	if len(err.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %q", err.Payload)
		if err.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer string from a command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "subscription":
		return log.LayerSubscription, nil
	case "coalescer":
		return log.LayerCoalescer, nil
	case "collection":
		return log.LayerCollection, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, subscription, coalescer, or collection)", s)
	}
}

// ParseCategoryFlag parses a category string from a command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "state":
		return log.CategoryState, nil
	case "change":
		return log.CategoryChange, nil
	case "summary":
		return log.CategorySummary, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be state, change, summary, or error)", s)
	}
}

// FilterOptions holds the raw filter flags shared by view, export and filter.
type FilterOptions struct {
	SubscriptionID string
	Resource       string
	Layer          string
	Category       string
	TimeStart      string
	TimeEnd        string
}

// Build parses the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		SubscriptionID: o.SubscriptionID,
		Resource:       o.Resource,
	}
	if o.Layer != "" {
		l, err := ParseLayerFlag(o.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if o.Category != "" {
		c, err := ParseCategoryFlag(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	return filter, nil
}

// RunView executes the view command.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}

	return nil
}
