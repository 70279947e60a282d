package log

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test trace: %v", err)
	}

	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAllFiltered(t *testing.T, path string, filter Filter) []Event {
	t.Helper()
	reader, err := NewFilteredReader(path, filter)
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return events
}

func TestReaderIteratesEvents(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now(), SubscriptionID: "sub-1", Layer: LayerTransport, Category: CategoryState},
		{Timestamp: time.Now(), SubscriptionID: "sub-2", Layer: LayerSubscription, Category: CategoryChange},
		{Timestamp: time.Now(), SubscriptionID: "sub-3", Layer: LayerCoalescer, Category: CategorySummary},
	}

	path := createTestLogFile(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var read []Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		read = append(read, event)
	}

	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	for i, want := range []string{"sub-1", "sub-2", "sub-3"} {
		if read[i].SubscriptionID != want {
			t.Errorf("event %d: SubscriptionID = %q, want %q", i, read[i].SubscriptionID, want)
		}
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.slog")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestReaderHandlesTruncatedFile(t *testing.T) {
	path := createTestLogFile(t, []Event{
		{Timestamp: time.Now(), SubscriptionID: "sub-1", Resource: "funding_rates"},
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err == nil || err == io.EOF {
		t.Errorf("Next() error = %v, want decode error", err)
	}
}

func TestReaderReportsHeader(t *testing.T) {
	path := createTestLogFile(t, []Event{{Timestamp: time.Now(), SubscriptionID: "sub-1"}})

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, ok := reader.Header(); ok {
		t.Error("Header() reported before reading")
	}
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
	h, ok := reader.Header()
	if !ok {
		t.Fatal("Header() = false, want header")
	}
	if h.Format != TraceFormat || h.Version != TraceVersion || h.Created.IsZero() {
		t.Errorf("Header() = %+v", h)
	}
}

func writeRawTrace(t *testing.T, items ...any) string {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "raw.slog")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestReaderReadsHeaderlessTrace(t *testing.T) {
	path := writeRawTrace(t,
		Event{Timestamp: time.Now(), SubscriptionID: "sub-1"},
		Event{Timestamp: time.Now(), SubscriptionID: "sub-2"},
	)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
	if _, ok := reader.Header(); ok {
		t.Error("Header() = true for headerless trace")
	}
}

func TestReaderRejectsForeignHeaders(t *testing.T) {
	tests := []struct {
		name   string
		header Header
		want   error
	}{
		{"other format", Header{Format: "pcap", Version: 1}, ErrNotTrace},
		{"newer version", Header{Format: TraceFormat, Version: TraceVersion + 1}, ErrUnsupportedTraceVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRawTrace(t, tt.header, Event{Timestamp: time.Now(), SubscriptionID: "sub-1"})

			reader, err := NewReader(path)
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}
			defer reader.Close()

			if _, err := reader.Next(); !errors.Is(err, tt.want) {
				t.Errorf("Next() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReaderFilterBySubscriptionID(t *testing.T) {
	path := createTestLogFile(t, []Event{
		{Timestamp: time.Now(), SubscriptionID: "sub-1"},
		{Timestamp: time.Now(), SubscriptionID: "sub-2"},
		{Timestamp: time.Now(), SubscriptionID: "sub-1"},
	})

	got := readAllFiltered(t, path, Filter{SubscriptionID: "sub-1"})
	if len(got) != 2 {
		t.Errorf("got %d events, want 2", len(got))
	}
}

func TestReaderFilterByResource(t *testing.T) {
	path := createTestLogFile(t, []Event{
		{Timestamp: time.Now(), SubscriptionID: "a", Resource: "trades"},
		{Timestamp: time.Now(), SubscriptionID: "b", Resource: "funding_rates"},
	})

	got := readAllFiltered(t, path, Filter{Resource: "funding_rates"})
	if len(got) != 1 || got[0].SubscriptionID != "b" {
		t.Errorf("got %+v, want single event from b", got)
	}
}

func TestReaderFilterByLayerAndCategory(t *testing.T) {
	path := createTestLogFile(t, []Event{
		{Timestamp: time.Now(), SubscriptionID: "a", Layer: LayerTransport, Category: CategoryError},
		{Timestamp: time.Now(), SubscriptionID: "b", Layer: LayerSubscription, Category: CategoryError},
		{Timestamp: time.Now(), SubscriptionID: "c", Layer: LayerSubscription, Category: CategoryState},
	})

	layer := LayerSubscription
	got := readAllFiltered(t, path, Filter{Layer: &layer})
	if len(got) != 2 {
		t.Errorf("layer filter: got %d events, want 2", len(got))
	}

	category := CategoryError
	got = readAllFiltered(t, path, Filter{Layer: &layer, Category: &category})
	if len(got) != 1 || got[0].SubscriptionID != "b" {
		t.Errorf("combined filter: got %+v, want single event from b", got)
	}
}

func TestReaderFilterByTimeRange(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	path := createTestLogFile(t, []Event{
		{Timestamp: base, SubscriptionID: "early"},
		{Timestamp: base.Add(time.Minute), SubscriptionID: "middle"},
		{Timestamp: base.Add(2 * time.Minute), SubscriptionID: "late"},
	})

	start := base.Add(30 * time.Second)
	end := base.Add(2 * time.Minute)
	got := readAllFiltered(t, path, Filter{TimeStart: &start, TimeEnd: &end})
	if len(got) != 1 || got[0].SubscriptionID != "middle" {
		t.Errorf("got %+v, want only middle", got)
	}
}
