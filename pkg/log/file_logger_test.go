package log

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("trace file was not created")
	}
	if logger.Path() != path {
		t.Errorf("Path() = %q, want %q", logger.Path(), path)
	}
}

func TestFileLoggerWritesCBOR(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	logger.Log(Event{
		Timestamp:      time.Now(),
		SubscriptionID: "sub-123",
		Resource:       "trades",
		Layer:          LayerSubscription,
		Category:       CategoryChange,
		Change:         &ChangeEventData{Kind: "CREATED", Key: "7"},
	})
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read trace file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("trace file is empty")
	}

	dec := NewDecoder(bytes.NewReader(data))
	var header Header
	if err := dec.Decode(&header); err != nil {
		t.Fatalf("decode header failed: %v", err)
	}
	if err := header.Validate(); err != nil {
		t.Errorf("header = %+v: %v", header, err)
	}

	var decoded Event
	if err := dec.Decode(&decoded); err != nil {
		t.Fatalf("decode event failed: %v", err)
	}
	if decoded.SubscriptionID != "sub-123" {
		t.Errorf("SubscriptionID = %q, want sub-123", decoded.SubscriptionID)
	}
	if decoded.Change == nil || decoded.Change.Key != "7" {
		t.Errorf("Change = %+v", decoded.Change)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.slog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), SubscriptionID: "sub"})
		logger.Close()
	}

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

	// Only the first open writes a header.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	dec := NewDecoder(bytes.NewReader(data))
	headers := 0
	for {
		var item traceItem
		if err := dec.Decode(&item); err != nil {
			break
		}
		if _, ok := item.header(); ok {
			headers++
		}
	}
	if headers != 1 {
		t.Errorf("got %d headers, want 1", headers)
	}
}

func TestFileLoggerConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	const goroutines = 10
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				logger.Log(Event{
					Timestamp:      time.Now(),
					SubscriptionID: "sub",
					Category:       CategoryChange,
					Change:         &ChangeEventData{Kind: "CHANGED"},
				})
			}
		}()
	}
	wg.Wait()

	written, failed := logger.Stats()
	if written != goroutines*perGoroutine || failed != 0 {
		t.Errorf("Stats() = (%d, %d), want (%d, 0)", written, failed, goroutines*perGoroutine)
	}
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != goroutines*perGoroutine {
		t.Errorf("got %d events, want %d", len(events), goroutines*perGoroutine)
	}
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(filepath.Join(dir, "test.slog"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	// Ignored after close.
	logger.Log(Event{SubscriptionID: "late"})
	if written, _ := logger.Stats(); written != 0 {
		t.Errorf("written = %d after close, want 0", written)
	}
}

func TestFileLoggerInvalidPath(t *testing.T) {
	_, err := NewFileLogger(filepath.Join(t.TempDir(), "missing", "dir", "test.slog"))
	if err == nil {
		t.Error("expected error for missing directory")
	}
}
