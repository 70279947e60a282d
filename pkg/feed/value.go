package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var errTrailingData = errors.New("unexpected data after JSON value")

// DecodeRecord parses a JSON object into a Record. Numbers keep their
// exact value: integers become int64, fractions float64, and integers
// beyond int64 stay json.Number.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := decodeJSON(data, &r); err != nil {
		return nil, err
	}
	normalizeRecord(r)
	return r, nil
}

// decodeJSON decodes a single JSON value, keeping numbers as json.Number.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

// normalizeRecord replaces json.Number values in place, recursing into
// nested objects and arrays.
func normalizeRecord(m map[string]any) {
	for k, v := range m {
		m[k] = NormalizeValue(v)
	}
}

// NormalizeValue converts decoder-specific representations into the
// forms records carry: json.Number becomes int64 or float64, and a
// 16-byte UUID becomes its string form.
func NormalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		return numberValue(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case map[string]any:
		normalizeRecord(x)
		return x
	case Record:
		normalizeRecord(x)
		return x
	case []any:
		for i := range x {
			x[i] = NormalizeValue(x[i])
		}
		return x
	default:
		return v
	}
}

func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if !strings.ContainsAny(string(n), ".eE") {
		// Integer outside int64: keep every digit.
		return n
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n
}

// FormatValue renders a record value in canonical text form, so that the
// same value compares equal whichever codec or driver produced it.
// Integral floats print without a fraction (7 from JSON equals int64(7)
// from the database), UUIDs print in their hyphenated form, and times
// print as RFC 3339 in UTC.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return formatNumber(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return FormatValue(float64(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatNumber(n json.Number) string {
	switch v := numberValue(n).(type) {
	case json.Number:
		return strings.TrimPrefix(string(v), "+")
	default:
		return FormatValue(v)
	}
}
