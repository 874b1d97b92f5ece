package card

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field is a single card value: absent, a scalar string, or an ordered list of strings.
// The zero value is absent.
type Field struct {
	values []string
	list   bool
}

// Absent returns the missing marker.
func Absent() Field { return Field{} }

// Scalar returns a single-valued field.
func Scalar(s string) Field { return Field{values: []string{s}} }

// List returns a multi-valued field holding a copy of values.
func List(values ...string) Field {
	return Field{values: append([]string{}, values...), list: true}
}

// IsAbsent reports whether f holds no value.
func (f Field) IsAbsent() bool { return !f.list && len(f.values) == 0 }

// IsList reports whether f is a list, even a single-element one.
func (f Field) IsList() bool { return f.list }

// Value returns the scalar value. ok is false for absent and list fields.
func (f Field) Value() (string, bool) {
	if f.list || len(f.values) == 0 {
		return "", false
	}
	return f.values[0], true
}

// Values returns the list elements, or the scalar as a one-element slice.
func (f Field) Values() []string {
	return append([]string(nil), f.values...)
}

// First returns the representative value: the scalar, or the first list element.
func (f Field) First() (string, bool) {
	if len(f.values) == 0 {
		return "", false
	}
	return f.values[0], true
}

// String renders f for logs.
func (f Field) String() string {
	switch {
	case f.list:
		return "[" + strings.Join(f.values, ", ") + "]"
	case len(f.values) == 0:
		return "<absent>"
	default:
		return f.values[0]
	}
}

// MarshalJSON encodes absent as null, a scalar as a string and a list as an array.
func (f Field) MarshalJSON() ([]byte, error) {
	switch {
	case f.list:
		return json.Marshal(f.values)
	case len(f.values) == 0:
		return []byte("null"), nil
	default:
		return json.Marshal(f.values[0])
	}
}

// UnmarshalJSON accepts the MarshalJSON forms: null, string or array of strings.
func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = Absent()
	case len(b) > 0 && b[0] == '[':
		var values []string
		if err := json.Unmarshal(b, &values); err != nil {
			return fmt.Errorf("card field: %w", err)
		}
		*f = List(values...)
	default:
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("card field: %w", err)
		}
		*f = Scalar(s)
	}
	return nil
}
