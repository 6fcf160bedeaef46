package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripperFunc allows mocking http.Client transports inline.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	_, err := New("/api")
	assert.Error(t, err)
}

func TestURL(t *testing.T) {
	c, err := New("http://shop.test:8000/")
	require.NoError(t, err)

	assert.Equal(t, "http://shop.test:8000/api/cart/", c.URL("/api/cart/"))
	assert.Equal(t, "http://shop.test:8000/api/cart/", c.URL("api/cart/"))
	assert.Equal(t, "https://cdn.test/x.png", c.URL("https://cdn.test/x.png"))
}

func TestDo_UnsafeMethodFetchesCSRFFirst(t *testing.T) {
	var probes atomic.Int32
	var gotToken, gotXRW, gotRequestID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == CSRFProbePath:
			probes.Add(1)
			http.SetCookie(w, &http.Cookie{Name: CSRFCookie, Value: "tok123", Path: "/"})
			w.WriteHeader(http.StatusUnauthorized)
		case r.Method == http.MethodPost && r.URL.Path == "/api/cart/item/":
			gotToken = r.Header.Get(CSRFHeader)
			gotXRW = r.Header.Get("X-Requested-With")
			gotRequestID = r.Header.Get("X-Request-ID")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	for range 2 {
		res, err := c.Do(context.Background(), "post", "/api/cart/item/", map[string]any{"product_id": 1})
		require.NoError(t, err)
		assert.True(t, res.OK())
	}

	assert.Equal(t, int32(1), probes.Load(), "probe only while no cookie is held")
	assert.Equal(t, "tok123", gotToken)
	assert.Equal(t, "XMLHttpRequest", gotXRW)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "tok123", c.CSRFToken())
}

func TestDo_SafeMethodSkipsCSRF(t *testing.T) {
	var calls []string
	c, err := New("http://shop.test", WithTransport(roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		calls = append(calls, req.Method+" "+req.URL.Path)
		if req.Header.Get(CSRFHeader) != "" {
			t.Errorf("GET must not carry a CSRF header")
		}
		return jsonResponse(http.StatusOK, `[]`), nil
	})))
	require.NoError(t, err)

	_, err = c.Do(context.Background(), http.MethodGet, "/api/products/", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /api/products/"}, calls)
}

func TestSameOrigin(t *testing.T) {
	c, err := New("http://shop.test:8000")
	require.NoError(t, err)

	assert.True(t, c.SameOrigin("/en/graphql"))
	assert.True(t, c.SameOrigin("http://SHOP.test:8000/en/graphql"))
	assert.False(t, c.SameOrigin("https://shop.test:8000/en/graphql"))
	assert.False(t, c.SameOrigin("http://shop.test:9000/en/graphql"))
	assert.False(t, c.SameOrigin("http://gql.test/graphql"))
}

func TestDo_CSRFOnlyForBackendOrigin(t *testing.T) {
	got := map[string]string{}
	c, err := New("http://shop.test", WithTransport(roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		got[req.Method+" "+req.URL.Host+req.URL.Path] = req.Header.Get(CSRFHeader)
		return jsonResponse(http.StatusOK, `{}`), nil
	})))
	require.NoError(t, err)
	c.http.Jar.SetCookies(c.base, []*http.Cookie{{Name: CSRFCookie, Value: "tok", Path: "/"}})

	_, err = c.Do(context.Background(), http.MethodPost, "/api/cart/item/", nil)
	require.NoError(t, err)
	_, err = c.Do(context.Background(), http.MethodPost, "http://gql.test/graphql", nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"POST shop.test/api/cart/item/": "tok",
		"POST gql.test/graphql":         "",
	}, got)
}

func TestDo_TransportError(t *testing.T) {
	c, err := New("http://shop.test", WithTransport(roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	})))
	require.NoError(t, err)

	_, err = c.Do(context.Background(), http.MethodGet, "/api/cart/", nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, GenericMessage, Message(err))
}

func TestDo_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithTimeout(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Do(ctx, http.MethodGet, "/api/cart/", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResponseJSON(t *testing.T) {
	tests := []struct {
		name string
		res  *Response
		want bool
	}{
		{"json", &Response{Status: 200, Header: http.Header{"Content-Type": {"application/json; charset=utf-8"}}, Body: []byte(`{"a":1}`)}, true},
		{"no content", &Response{Status: 204, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"a":1}`)}, false},
		{"empty", &Response{Status: 200, Header: http.Header{"Content-Type": {"application/json"}}}, false},
		{"html", &Response{Status: 200, Header: http.Header{"Content-Type": {"text/html"}}, Body: []byte(`<html>`)}, false},
		{"broken", &Response{Status: 200, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{`)}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.JSON() != nil)
		})
	}
}

func TestDecodeList(t *testing.T) {
	type row struct {
		ID int `json:"id"`
	}
	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantRows  int
		wantCount int
	}{
		{"array", `[{"id":1},{"id":2}]`, true, 2, 2},
		{"paginated", `{"count":40,"results":[{"id":1}]}`, true, 1, 40},
		{"items", `{"items":[{"id":1},{"id":2},{"id":3}]}`, true, 3, 3},
		{"results not array", `{"results":{"id":1}}`, false, 0, 0},
		{"object", `{"id":1}`, false, 0, 0},
		{"empty array", `[]`, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &Response{Status: 200, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(tt.body)}
			page, ok := DecodeList[row](res)
			assert.Equal(t, tt.wantOK, ok)
			assert.Len(t, page.Rows, tt.wantRows)
			assert.Equal(t, tt.wantCount, page.Count)
		})
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"No active account found"}`, "No active account found"},
		{"field list", `{"email":["user with this email already exists."]}`, "user with this email already exists."},
		{"field string", `{"password":"too short"}`, "too short"},
		{"plain text", `Bad Gateway`, "Bad Gateway"},
		{"html", `<html>oops</html>`, "HTTP 502"},
		{"empty", ``, "HTTP 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Response{Status: 502, Body: []byte(tt.body)}).Err()
			require.Error(t, err)
			assert.Equal(t, tt.want, Message(err))
			assert.Equal(t, 502, StatusOf(err))
		})
	}
}

func TestHTTPErrorField(t *testing.T) {
	err := (&Response{Status: 400, Body: []byte(`{"username":["taken"],"password":["weak"]}`)}).Err()
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "taken", he.Field("email", "username", "password"))
	assert.Equal(t, "", he.Field("email"))
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized((&Response{Status: 401}).Err()))
	assert.False(t, IsUnauthorized((&Response{Status: 403}).Err()))
	assert.False(t, IsUnauthorized(errors.New("x")))
	assert.NoError(t, (&Response{Status: 201}).Err())
}

func TestDecode(t *testing.T) {
	res := &Response{Status: 200, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"a":"b"}`)}
	var v map[string]string
	require.NoError(t, res.Decode(&v))
	assert.Equal(t, "b", v["a"])

	empty := &Response{Status: 204}
	assert.ErrorIs(t, empty.Decode(&v), ErrNoJSON)

	_, ok := ParseList[json.RawMessage](nil)
	assert.False(t, ok)
}
