package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrUnparseableReply means the model answered with something other than a JSON object.
var ErrUnparseableReply = errors.New("unparseable model reply")

var framing = strings.NewReplacer("\n", "", "```json", "", "```", "")

// Normalize parses a raw model reply into a Record. Newlines and code fences
// are stripped first; null, false, "", "null", [] and {} become absent, and
// keys the model left out are absent too.
func Normalize(reply string) (Record, error) {
	cleaned := framing.Replace(reply)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var top any
	if err := dec.Decode(&top); err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrUnparseableReply, err)
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return Record{}, fmt.Errorf("%w: trailing data after JSON value", ErrUnparseableReply)
	}
	obj, ok := top.(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("%w: top-level value is %T, want object", ErrUnparseableReply, top)
	}

	var rec Record
	for _, name := range FieldNames {
		*rec.field(name) = fieldFromJSON(obj[name])
	}
	return rec, nil
}

func fieldFromJSON(v any) Field {
	switch t := v.(type) {
	case nil:
		return Absent()
	case bool:
		if !t {
			return Absent()
		}
		return Scalar("true")
	case string:
		if isNullString(t) {
			return Absent()
		}
		return Scalar(t)
	case json.Number:
		return Scalar(t.String())
	case []any:
		var values []string
		for _, el := range t {
			values = append(values, fieldFromJSON(el).values...)
		}
		if len(values) == 0 {
			return Absent()
		}
		return List(values...)
	case map[string]any:
		if len(t) == 0 {
			return Absent()
		}
		b, err := json.Marshal(t)
		if err != nil {
			return Absent()
		}
		return Scalar(string(b))
	default:
		return Scalar(fmt.Sprint(t))
	}
}

func isNullString(s string) bool {
	return s == "" || strings.TrimSpace(s) == "null"
}
