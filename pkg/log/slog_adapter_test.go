package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func logToJSON(t *testing.T, adapter func(*slog.Logger) *SlogAdapter, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	adapter(slog.New(handler)).Log(event)

	if buf.Len() == 0 {
		t.Fatal("no output produced")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	return entry
}

func TestSlogAdapterLogsStateChange(t *testing.T) {
	retry := 2 * time.Second
	entry := logToJSON(t, NewSlogAdapter, Event{
		Timestamp:      time.Now(),
		SubscriptionID: "sub-123",
		Resource:       "funding_rates",
		Layer:          LayerSubscription,
		Category:       CategoryState,
		StateChange: &StateChangeEvent{
			OldState: "CONNECTING",
			NewState: "ERRORED",
			Reason:   "refused",
			Attempt:  2,
			RetryIn:  &retry,
		},
	})

	if entry["msg"] != "sync" {
		t.Errorf("msg = %v, want sync", entry["msg"])
	}
	if entry["level"] != "DEBUG" {
		t.Errorf("level = %v, want DEBUG", entry["level"])
	}
	if entry["sub_id"] != "sub-123" {
		t.Errorf("sub_id = %v", entry["sub_id"])
	}
	if entry["resource"] != "funding_rates" {
		t.Errorf("resource = %v", entry["resource"])
	}
	if entry["new_state"] != "ERRORED" || entry["old_state"] != "CONNECTING" {
		t.Errorf("states = %v -> %v", entry["old_state"], entry["new_state"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", entry["attempt"])
	}
	if _, ok := entry["retry_in"]; !ok {
		t.Error("retry_in missing")
	}
}

func TestSlogAdapterLogsChange(t *testing.T) {
	entry := logToJSON(t, NewSlogAdapter, Event{
		SubscriptionID: "sub-1",
		Layer:          LayerCollection,
		Category:       CategoryChange,
		Change:         &ChangeEventData{Kind: "REMOVED", Key: "42"},
	})

	if entry["kind"] != "REMOVED" || entry["key"] != "42" {
		t.Errorf("kind/key = %v/%v", entry["kind"], entry["key"])
	}
	if entry["layer"] != "COLLECTION" {
		t.Errorf("layer = %v", entry["layer"])
	}
	if _, ok := entry["resource"]; ok {
		t.Error("empty resource should be omitted")
	}
}

func TestSlogAdapterLogsSummary(t *testing.T) {
	entry := logToJSON(t, NewSlogAdapter, Event{
		SubscriptionID: "sub-1",
		Layer:          LayerCoalescer,
		Category:       CategorySummary,
		Summary:        &SummaryEvent{Count: 50, RepresentativeKind: "CHANGED"},
	})

	if entry["count"] != float64(50) {
		t.Errorf("count = %v, want 50", entry["count"])
	}
	if entry["representative_kind"] != "CHANGED" {
		t.Errorf("representative_kind = %v", entry["representative_kind"])
	}
}

func TestSlogAdapterLogsError(t *testing.T) {
	entry := logToJSON(t, NewSlogAdapter, Event{
		SubscriptionID: "sub-1",
		Layer:          LayerTransport,
		Category:       CategoryError,
		Error: &ErrorEventData{
			Layer:     LayerTransport,
			Message:   "malformed payload",
			Context:   "decode",
			Truncated: true,
		},
	})

	if entry["error_msg"] != "malformed payload" {
		t.Errorf("error_msg = %v", entry["error_msg"])
	}
	if entry["truncated"] != true {
		t.Errorf("truncated = %v", entry["truncated"])
	}
}

func TestSlogAdapterWithLevel(t *testing.T) {
	entry := logToJSON(t, func(l *slog.Logger) *SlogAdapter {
		return NewSlogAdapter(l).WithLevel(slog.LevelWarn)
	}, Event{SubscriptionID: "sub-1", Category: CategoryError, Error: &ErrorEventData{Message: "x"}})

	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
}
