package log

import (
	"bytes"
	"testing"
)

func TestLayerString(t *testing.T) {
	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerTransport, "TRANSPORT"},
		{LayerSubscription, "SUBSCRIPTION"},
		{LayerCoalescer, "COALESCER"},
		{LayerCollection, "COLLECTION"},
		{Layer(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.layer.String(); got != tt.want {
				t.Errorf("Layer(%d).String() = %q, want %q", tt.layer, got, tt.want)
			}
		})
	}
}

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryState, "STATE"},
		{CategoryChange, "CHANGE"},
		{CategorySummary, "SUMMARY"},
		{CategoryError, "ERROR"},
		{Category(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.category.String(); got != tt.want {
				t.Errorf("Category(%d).String() = %q, want %q", tt.category, got, tt.want)
			}
		})
	}
}

// Values are part of the trace file format and must not change.
func TestLayerValues(t *testing.T) {
	if LayerTransport != 0 || LayerSubscription != 1 || LayerCoalescer != 2 || LayerCollection != 3 {
		t.Error("layer values changed")
	}
}

func TestCategoryValues(t *testing.T) {
	if CategoryState != 0 || CategoryChange != 1 || CategorySummary != 2 || CategoryError != 3 {
		t.Error("category values changed")
	}
}

func TestCapturePayload(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		raw := []byte("not json")
		data, truncated := CapturePayload(raw)
		if truncated {
			t.Error("short payload reported as truncated")
		}
		if !bytes.Equal(data, raw) {
			t.Errorf("data = %q, want %q", data, raw)
		}
		raw[0] = 'X'
		if data[0] == 'X' {
			t.Error("captured payload aliases the input")
		}
	})

	t.Run("long", func(t *testing.T) {
		raw := bytes.Repeat([]byte{'a'}, MaxPayloadCapture+10)
		data, truncated := CapturePayload(raw)
		if !truncated {
			t.Error("long payload not reported as truncated")
		}
		if len(data) != MaxPayloadCapture {
			t.Errorf("len(data) = %d, want %d", len(data), MaxPayloadCapture)
		}
	})
}
