package feed

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFilter is returned for predicates that cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter")

// Operator is a filter comparison.
type Operator uint8

const (
	OpEq Operator = iota + 1
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIn
)

var operatorNames = map[string]Operator{
	"eq":  OpEq,
	"neq": OpNeq,
	"lt":  OpLt,
	"lte": OpLte,
	"gt":  OpGt,
	"gte": OpGte,
	"in":  OpIn,
}

// String returns the operator token.
func (o Operator) String() string {
	for name, op := range operatorNames {
		if op == o {
			return name
		}
	}
	return "unknown"
}

// Filter is a parsed subscription predicate of the form column=op.value.
// The zero Filter matches every record.
type Filter struct {
	Column   string
	Operator Operator
	Values   []string
	raw      string
}

// ParseFilter parses a predicate. An empty string yields the match-all filter.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Filter{}, nil
	}

	column, rest, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return Filter{}, fmt.Errorf("%w: %q: missing column", ErrInvalidFilter, s)
	}
	opName, value, ok := strings.Cut(rest, ".")
	if !ok {
		return Filter{}, fmt.Errorf("%w: %q: missing operator", ErrInvalidFilter, s)
	}
	op, ok := operatorNames[opName]
	if !ok {
		return Filter{}, fmt.Errorf("%w: %q: unknown operator %q", ErrInvalidFilter, s, opName)
	}

	f := Filter{Column: strings.TrimSpace(column), Operator: op, raw: s}
	if op == OpIn {
		if !strings.HasPrefix(value, "(") || !strings.HasSuffix(value, ")") {
			return Filter{}, fmt.Errorf("%w: %q: in requires (a,b,...)", ErrInvalidFilter, s)
		}
		for _, v := range strings.Split(value[1:len(value)-1], ",") {
			f.Values = append(f.Values, strings.TrimSpace(v))
		}
	} else {
		f.Values = []string{value}
	}
	return f, nil
}

// MustParseFilter is like ParseFilter but panics on error.
func MustParseFilter(s string) Filter {
	f, err := ParseFilter(s)
	if err != nil {
		panic(err)
	}
	return f
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Operator == 0
}

// String returns the original predicate text.
func (f Filter) String() string {
	return f.raw
}

// Match reports whether the record satisfies the filter. Records that do not
// carry the column never match a non-zero filter.
func (f Filter) Match(r Record) bool {
	if f.IsZero() {
		return true
	}
	v, ok := r.Lookup(f.Column)
	if !ok {
		return false
	}

	switch f.Operator {
	case OpEq:
		return compare(v, f.Values[0]) == 0
	case OpNeq:
		return compare(v, f.Values[0]) != 0
	case OpLt:
		return compare(v, f.Values[0]) < 0
	case OpLte:
		return compare(v, f.Values[0]) <= 0
	case OpGt:
		return compare(v, f.Values[0]) > 0
	case OpGte:
		return compare(v, f.Values[0]) >= 0
	case OpIn:
		for _, want := range f.Values {
			if compare(v, want) == 0 {
				return true
			}
		}
	}
	return false
}

// MatchEvent applies the filter to the side of the event that carries data.
func (f Filter) MatchEvent(ev ChangeEvent) bool {
	if f.IsZero() {
		return true
	}
	if ev.Kind == KindRemoved {
		return f.Match(ev.OldValue)
	}
	return f.Match(ev.NewValue)
}

// compare orders a record value against a filter literal. Numbers compare
// numerically when both sides parse; everything else compares as text.
func compare(v any, literal string) int {
	s := FormatValue(v)
	if a, err := strconv.ParseFloat(s, 64); err == nil {
		if b, err := strconv.ParseFloat(literal, 64); err == nil {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(s, literal)
}
