package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// GenericMessage is shown for failures that never produced a server message.
const GenericMessage = "Something went wrong. Please try again."

// TransportError reports a request that produced no HTTP response
// (connection refused, timeout, unreadable body).
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response.
type HTTPError struct {
	Status int
	// Detail is the server's "detail" message, if any.
	Detail string
	// Fields holds per-field validation messages ({"email": ["taken"]}).
	Fields map[string][]string
	// Body is the raw response text.
	Body string
}

func newHTTPError(r *Response) *HTTPError {
	e := &HTTPError{Status: r.Status, Body: strings.TrimSpace(string(r.Body))}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(r.Body, &obj); err != nil {
		return e
	}
	e.Fields = make(map[string][]string)
	for k, raw := range obj {
		msgs := messages(raw)
		if len(msgs) == 0 {
			continue
		}
		if k == "detail" {
			e.Detail = msgs[0]
			continue
		}
		e.Fields[k] = msgs
	}
	return e
}

// messages reads a field value that can be a string or a list of strings.
func messages(raw json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return nil
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message())
}

// Field returns the first message for the first of keys that has one.
func (e *HTTPError) Field(keys ...string) string {
	for _, k := range keys {
		if msgs := e.Fields[k]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	return ""
}

// Message is the user-facing text: detail, then the first field error in key
// order, then a plain-text body, then "HTTP <status>".
func (e *HTTPError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return e.Fields[keys[0]][0]
	}
	if e.Body != "" && !strings.HasPrefix(e.Body, "{") && !strings.HasPrefix(e.Body, "<") {
		return e.Body
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf extracts the HTTP status from err, 0 when it carries none.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// Message maps any error onto the text a view shows inline.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Message()
	}
	var te *TransportError
	if errors.As(err, &te) {
		return GenericMessage
	}
	var se *json.SyntaxError
	if errors.As(err, &se) || errors.Is(err, ErrNoJSON) {
		return GenericMessage
	}
	return err.Error()
}
