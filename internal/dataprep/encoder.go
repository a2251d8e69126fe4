package dataprep

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/exp/maps"
)

// ErrUnknownValue is returned when encoding a value outside the training vocabulary.
var ErrUnknownValue = errors.New("value not in training vocabulary")

// Encoder maps the observed values of one column to dense integer codes.
// Codes follow the sorted order of the vocabulary, so fitting the same
// corpus twice yields the same mapping.
type Encoder struct {
	column  string
	classes []string
	codes   map[string]int
}

// FitEncoder builds an Encoder from every value observed in a column.
func FitEncoder(column string, values []string) *Encoder {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	classes := maps.Keys(seen)
	sort.Strings(classes)

	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		codes[c] = i
	}
	return &Encoder{column: column, classes: classes, codes: codes}
}

// Column returns the name of the column this encoder was fit on.
func (e *Encoder) Column() string { return e.column }

// Len returns the vocabulary size.
func (e *Encoder) Len() int { return len(e.classes) }

// Classes returns the vocabulary in code order.
func (e *Encoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

// Encode returns the code for v, or ErrUnknownValue.
func (e *Encoder) Encode(v string) (int, error) {
	code, ok := e.codes[v]
	if !ok {
		return 0, fmt.Errorf("encode %s=%q: %w", e.column, v, ErrUnknownValue)
	}
	return code, nil
}

// Decode returns the value for a code.
func (e *Encoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.classes) {
		return "", fmt.Errorf("decode %s: code %d out of range [0,%d)", e.column, code, len(e.classes))
	}
	return e.classes[code], nil
}
