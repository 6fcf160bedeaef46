// Package jsonx holds lenient JSON scalar types for backend payloads whose
// field types drift between endpoints (ids as numbers or strings, quantities
// as strings, flags as 0/1).
package jsonx

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

var null = []byte("null")

// ID accepts a JSON number or string and keeps its textual form.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, null) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// Objects and arrays are not ids; treat them as absent.
		*id = ""
		return nil
	}
	*id = ID(n.String())
	return nil
}

// String returns the id text.
func (id ID) String() string { return string(id) }

// Int accepts a JSON number or numeric string. Anything else decodes to 0,
// matching Number(x) || 0.
type Int int

// UnmarshalJSON implements json.Unmarshaler.
func (n *Int) UnmarshalJSON(b []byte) error {
	*n = Int(ParseNumber(b))
	return nil
}

// Bool accepts true, 1, "1" and "true" as true; everything else is false.
type Bool bool

// UnmarshalJSON implements json.Unmarshaler.
func (v *Bool) UnmarshalJSON(b []byte) error {
	*v = Bool(Truthy(b))
	return nil
}

// Truthy reports whether a raw JSON value is one of the accepted true forms.
func Truthy(b []byte) bool {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1", `"1"`, `"true"`:
		return true
	}
	return false
}

// ParseNumber reads a JSON number or numeric string (commas allowed as
// thousands separators). Non-numeric input yields 0.
func ParseNumber(b []byte) float64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		return 0
	}
	var s string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return 0
		}
	} else {
		s = string(b)
	}
	return ParseFloat(s)
}

// ParseFloat is ParseNumber for plain text.
func ParseFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// IsNumber reports whether raw is a JSON number literal (not a string).
func IsNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, null) {
		return false
	}
	var n json.Number
	return raw[0] != '"' && json.Unmarshal(raw, &n) == nil
}

// FirstString returns the first non-empty string among vals.
func FirstString(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Text accepts a JSON string or number. Objects, arrays and null decode to "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	var id ID
	_ = id.UnmarshalJSON(b)
	*t = Text(id)
	return nil
}

// String returns the text.
func (t Text) String() string { return string(t) }

// Float accepts a JSON number or numeric string; anything else is 0.
type Float float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(b []byte) error {
	*f = Float(ParseNumber(b))
	return nil
}
