package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fundingarb/livesync/pkg/log"
)

var baseTime = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

func sampleEvents() []log.Event {
	retry := time.Second
	return []log.Event{
		{
			Timestamp:      baseTime,
			SubscriptionID: "sub-aaaaaaaa-1",
			Resource:       "funding_rates",
			Layer:          log.LayerSubscription,
			Category:       log.CategoryState,
			StateChange:    &log.StateChangeEvent{OldState: "IDLE", NewState: "CONNECTING"},
		},
		{
			Timestamp:      baseTime.Add(10 * time.Millisecond),
			SubscriptionID: "sub-aaaaaaaa-1",
			Resource:       "funding_rates",
			Layer:          log.LayerSubscription,
			Category:       log.CategoryChange,
			Change:         &log.ChangeEventData{Kind: "INSERT", Key: "BTC", Fields: []string{"coin", "hyperliquid_rate"}, Size: 64},
		},
		{
			Timestamp:      baseTime.Add(1100 * time.Millisecond),
			SubscriptionID: "sub-aaaaaaaa-1",
			Resource:       "funding_rates",
			Layer:          log.LayerCoalescer,
			Category:       log.CategorySummary,
			Summary:        &log.SummaryEvent{Count: 50, RepresentativeKind: "INSERT", Window: 196 * time.Millisecond},
		},
		{
			Timestamp:      baseTime.Add(2 * time.Second),
			SubscriptionID: "sub-bbbbbbbb-2",
			Resource:       "positions",
			Predicate:      "user_id=eq.42",
			Layer:          log.LayerSubscription,
			Category:       log.CategoryState,
			StateChange:    &log.StateChangeEvent{OldState: "CONNECTED", NewState: "ERRORED", Reason: "connection reset", Attempt: 1, RetryIn: &retry},
		},
		{
			Timestamp:      baseTime.Add(3 * time.Second),
			SubscriptionID: "sub-bbbbbbbb-2",
			Resource:       "positions",
			Layer:          log.LayerTransport,
			Category:       log.CategoryError,
			Error:          &log.ErrorEventData{Layer: log.LayerTransport, Message: "malformed payload", Context: "decode", Payload: []byte("{bad"), Truncated: true},
		},
	}
}

func writeTrace(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.slog")
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestFormatStateEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[3])
	output := buf.String()

	for _, want := range []string{
		"2026-03-04T09:30:02.000000Z",
		"[sub:sub-bbbb]",
		"positions?user_id=eq.42",
		"SUBSCRIPTION State",
		"CONNECTED -> ERRORED",
		"Reason: connection reset",
		"Attempt: 1  Retry in: 1.000s",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestFormatChangeAndSummaryEvents(t *testing.T) {
	events := sampleEvents()

	var buf bytes.Buffer
	formatEvent(&buf, events[1])
	if got := buf.String(); !strings.Contains(got, "SUBSCRIPTION INSERT") || !strings.Contains(got, "Key: BTC") ||
		!strings.Contains(got, "Fields: coin, hyperliquid_rate") {
		t.Errorf("unexpected change output:\n%s", got)
	}

	buf.Reset()
	formatEvent(&buf, events[2])
	if got := buf.String(); !strings.Contains(got, "COALESCER Summary") || !strings.Contains(got, "Count: 50") ||
		!strings.Contains(got, "Window: 196.000ms") {
		t.Errorf("unexpected summary output:\n%s", got)
	}
}

func TestFormatErrorEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleEvents()[4])
	output := buf.String()

	if !strings.Contains(output, "Message: malformed payload") {
		t.Errorf("expected message, got:\n%s", output)
	}
	if !strings.Contains(output, `Payload: "{bad" (truncated)`) {
		t.Errorf("expected truncated payload, got:\n%s", output)
	}
}

func TestRunViewFilters(t *testing.T) {
	path := writeTrace(t, sampleEvents())

	filter, err := FilterOptions{Category: "state"}.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var buf bytes.Buffer
	if err := RunView(path, filter, &buf); err != nil {
		t.Fatalf("RunView: %v", err)
	}
	output := buf.String()
	if n := strings.Count(output, " State\n"); n != 2 {
		t.Errorf("state events = %d, want 2\n%s", n, output)
	}
	if strings.Contains(output, "Summary") {
		t.Errorf("summary should be filtered out:\n%s", output)
	}
}

func TestFilterOptionsBuild(t *testing.T) {
	filter, err := FilterOptions{
		Resource:  "positions",
		Layer:     "Transport",
		TimeStart: "2026-03-04T09:30:01Z",
	}.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if filter.Layer == nil || *filter.Layer != log.LayerTransport {
		t.Errorf("Layer = %v, want TRANSPORT", filter.Layer)
	}
	if filter.TimeStart == nil || !filter.TimeStart.Equal(baseTime.Add(time.Second)) {
		t.Errorf("TimeStart = %v", filter.TimeStart)
	}

	tests := []FilterOptions{
		{Layer: "wire"},
		{Category: "message"},
		{TimeStart: "yesterday"},
		{TimeEnd: "tomorrow"},
	}
	for _, tt := range tests {
		if _, err := tt.Build(); err == nil {
			t.Errorf("Build(%+v) expected error", tt)
		}
	}
}

func TestExportJSONL(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if err := export(reader, "jsonl", &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	lines := 0
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines+1, err)
		}
		if m["Resource"] == "" {
			t.Errorf("line %d has no resource", lines+1)
		}
		lines++
	}
	if lines != 5 {
		t.Errorf("lines = %d, want 5", lines)
	}
}

func TestExportCSV(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if err := export(reader, "csv", &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	rows := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}
	if !strings.HasPrefix(rows[0], "timestamp,subscription_id,resource") {
		t.Errorf("header = %q", rows[0])
	}
	if !strings.Contains(rows[3], "SUMMARY,Summary,,50") {
		t.Errorf("summary row = %q", rows[3])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	if err := RunExport(path, log.Filter{}, "xml", filepath.Join(t.TempDir(), "out")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRunFilter(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "positions.slog")

	n, err := RunFilter(path, log.Filter{Resource: "positions"}, out)
	if err != nil {
		t.Fatalf("RunFilter: %v", err)
	}
	if n != 2 {
		t.Errorf("filtered = %d, want 2", n)
	}

	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	for _, e := range events {
		if e.Resource != "positions" {
			t.Errorf("unexpected resource %q", e.Resource)
		}
	}
}

func TestRunStats(t *testing.T) {
	path := writeTrace(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Format:     livesync-trace v1",
		"Total Events: 5",
		"Duration:   3s",
		"SUBSCRIPTION:  3",
		"funding_rates",
		"positions",
		"ERRORED",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in stats, got:\n%s", want, output)
		}
	}
}

func TestCollectStats(t *testing.T) {
	path := writeTrace(t, sampleEvents())
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer reader.Close()

	stats, err := collectStats(reader)
	if err != nil {
		t.Fatalf("collectStats: %v", err)
	}

	if stats.Header == nil || stats.Header.Version != log.TraceVersion {
		t.Errorf("Header = %+v, want version %d", stats.Header, log.TraceVersion)
	}

	rates := stats.Resources["funding_rates"]
	if rates == nil {
		t.Fatal("no funding_rates stats")
	}
	if rates.Summaries != 1 || rates.Coalesced != 50 || rates.Changes != 1 {
		t.Errorf("funding_rates = %+v", rates)
	}

	pos := stats.Resources["positions"]
	if pos.Retries != 1 || pos.Errors != 1 || pos.LastState != "ERRORED" {
		t.Errorf("positions = %+v", pos)
	}
}
