package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ErrNoJSON is returned by Decode when the response carries no JSON document.
var ErrNoJSON = errors.New("response has no JSON body")

// Response is a fully read backend response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r != nil && r.Status >= 200 && r.Status < 300 }

// IsJSON reports whether the content type announces JSON.
func (r *Response) IsJSON() bool {
	return r != nil && strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

// JSON returns the body when it is a well-formed JSON document. 204, empty
// bodies, non-JSON content types and unparsable payloads all yield nil.
func (r *Response) JSON() json.RawMessage {
	if r == nil || r.Status == http.StatusNoContent || !r.IsJSON() {
		return nil
	}
	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}
	return body
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	raw := r.JSON()
	if raw == nil {
		return ErrNoJSON
	}
	return json.Unmarshal(raw, v)
}

// Err returns nil for 2xx responses and an *HTTPError otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return newHTTPError(r)
}

// Page is a decoded list payload.
type Page[T any] struct {
	Rows  []T
	Count int
}

// DecodeList accepts a bare JSON array or a paginated object carrying the rows
// under "results" (or "items"). ok is false when the body is not a list.
func DecodeList[T any](r *Response) (page Page[T], ok bool) {
	raw := r.JSON()
	if raw == nil {
		return page, false
	}
	return ParseList[T](raw)
}

// ParseList is DecodeList for a raw document.
func ParseList[T any](raw json.RawMessage) (page Page[T], ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return page, false
	}
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &page.Rows); err != nil {
			return Page[T]{}, false
		}
		page.Count = len(page.Rows)
		return page, true
	}

	var envelope struct {
		Results *json.RawMessage `json:"results"`
		Items   *json.RawMessage `json:"items"`
		Count   *int             `json:"count"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Page[T]{}, false
	}
	rows := envelope.Results
	if rows == nil || !isArray(*rows) {
		rows = envelope.Items
	}
	if rows == nil || !isArray(*rows) {
		return Page[T]{}, false
	}
	if err := json.Unmarshal(*rows, &page.Rows); err != nil {
		return Page[T]{}, false
	}
	page.Count = len(page.Rows)
	if envelope.Count != nil {
		page.Count = *envelope.Count
	}
	return page, true
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}
