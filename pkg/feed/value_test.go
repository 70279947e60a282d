package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatValue(t *testing.T) {
	id := uuid.MustParse("a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11")

	tests := []struct {
		in   any
		want string
	}{
		{float64(7), "7"},
		{int64(7), "7"},
		{7, "7"},
		{7.25, "7.25"},
		{"abc", "abc"},
		{nil, ""},
		{true, "true"},
		{json.Number("7"), "7"},
		{json.Number("7.0"), "7"},
		{json.Number("0.0500"), "0.05"},
		{json.Number("9007199254740993"), "9007199254740993"},
		{json.Number("123456789012345678901234567890"), "123456789012345678901234567890"},
		{[16]byte(id), "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11"},
		{id, "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11"},
		{time.Date(2026, 3, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600)), "2026-03-01T12:00:00Z"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeValue(t *testing.T) {
	id := uuid.MustParse("a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11")

	assert.Equal(t, int64(42), NormalizeValue(json.Number("42")))
	assert.Equal(t, 0.5, NormalizeValue(json.Number("0.5")))
	assert.Equal(t, float64(1000), NormalizeValue(json.Number("1e3")))
	assert.Equal(t, json.Number("18446744073709551616"), NormalizeValue(json.Number("18446744073709551616")))
	assert.Equal(t, id.String(), NormalizeValue([16]byte(id)))
	assert.Equal(t, "x", NormalizeValue("x"))

	nested := map[string]any{"legs": []any{json.Number("1"), map[string]any{"size": json.Number("2.5")}}}
	NormalizeValue(nested)
	legs := nested["legs"].([]any)
	assert.Equal(t, int64(1), legs[0])
	assert.Equal(t, 2.5, legs[1].(map[string]any)["size"])
}

func TestDecodeRecord(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"id": 9007199254740993, "size": 2, "price": 65000.5, "coin": "BTC"}`))
	require.NoError(t, err)

	assert.Equal(t, int64(9007199254740993), r["id"])
	assert.Equal(t, int64(2), r["size"])
	assert.Equal(t, 65000.5, r["price"])
	assert.Equal(t, "BTC", r["coin"])

	_, err = DecodeRecord([]byte(`{"id": 1} {"id": 2}`))
	assert.Error(t, err)
	_, err = DecodeRecord([]byte(`[1, 2]`))
	assert.Error(t, err)
}

func TestJSONDecodeKeepsLargeIntegers(t *testing.T) {
	// As float64 these two ids are equal.
	a, err := JSON.Decode([]byte(`{"type":"INSERT","table":"positions","new":{"id":9007199254740993}}`))
	require.NoError(t, err)
	b, err := JSON.Decode([]byte(`{"type":"INSERT","table":"positions","new":{"id":9007199254740992}}`))
	require.NoError(t, err)

	ka, _ := a.Key("id")
	kb, _ := b.Key("id")
	assert.Equal(t, "9007199254740993", FormatValue(ka))
	assert.NotEqual(t, FormatValue(ka), FormatValue(kb))
	assert.Equal(t, FormatValue(int64(9007199254740993)), FormatValue(ka))
}
