// Package money keeps backend amounts in their decimal text form and formats
// them for display.
package money

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
)

// Zero is the default for amounts the server omits.
const Zero = "0.00"

// Amount is a server-supplied decimal. It accepts JSON strings and numbers
// and remembers whether the field was present at all.
type Amount struct {
	text  string
	valid bool
}

// Of wraps a decimal string.
func Of(s string) Amount { return Amount{text: s, valid: true} }

// FromFloat renders f with two decimals.
func FromFloat(f float64) Amount { return Of(strconv.FormatFloat(f, 'f', 2, 64)) }

// UnmarshalJSON implements json.Unmarshaler. null leaves the amount unset.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Of(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*a = Amount{}
		return nil
	}
	*a = Of(n.String())
	return nil
}

// MarshalJSON emits the decimal as a string, or null when unset.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.text)
}

// Valid reports whether the server sent the field.
func (a Amount) Valid() bool { return a.valid }

// String returns the decimal text, "" when unset.
func (a Amount) String() string { return a.text }

// Or returns a when set, otherwise fallback.
func (a Amount) Or(fallback Amount) Amount {
	if a.valid {
		return a
	}
	return fallback
}

// Float is the numeric value; non-numeric text is 0.
func (a Amount) Float() float64 { return jsonx.ParseFloat(a.text) }

// Format renders a decimal string as US dollars: "19.98" -> "$19.98",
// "1234.5" -> "$1,234.50". Non-numeric input formats as "$0.00".
func Format(s string) string {
	return FormatFloat(jsonx.ParseFloat(s))
}

// FormatFloat renders f as US dollars with thousands grouping.
func FormatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	neg := f < 0
	if neg {
		f = -f
	}
	text := strconv.FormatFloat(f, 'f', 2, 64)
	whole, frac, _ := strings.Cut(text, ".")

	var b strings.Builder
	if neg && text != "0.00" {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
