package http_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atinyakov/sockcs/internal/middleware"
	handler "github.com/atinyakov/sockcs/internal/server/handler/http"
)

var bundle = fstest.MapFS{
	"index.html":        {Data: []byte("<div id=app></div>")},
	"assets/app.js":     {Data: []byte("console.log(1)")},
	"favicon.ico":       {Data: []byte("ico")},
	"assets/nested/x.c": {Data: []byte("x")},
}

type seen struct {
	mu   sync.Mutex
	reqs []*http.Request
}

func (s *seen) add(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, r.Clone(r.Context()))
}

func (s *seen) last() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reqs) == 0 {
		return nil
	}
	return s.reqs[len(s.reqs)-1]
}

func newEdge(t *testing.T, apiBase string) (http.Handler, *middleware.Metrics, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	m := middleware.NewMetrics()
	h, err := handler.NewRouter(handler.RouterConfig{APIBase: apiBase, Static: bundle}, m, zap.New(core))
	require.NoError(t, err)
	return h, m, logs
}

func TestRouter_ProxiesBackendPaths(t *testing.T) {
	var got seen
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.add(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"path":"`+r.URL.Path+`"}`)
	}))
	defer backend.Close()
	h, _, _ := newEdge(t, backend.URL)

	for _, p := range []string{"/api/products/?page=2", "/media/products/a.png", "/en/graphql"} {
		t.Run(p, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://shop.local"+p, nil)
			req.RemoteAddr = "192.0.2.7:5000"
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			last := got.last()
			require.NotNil(t, last)
			assert.Equal(t, strings.TrimPrefix(backend.URL, "http://"), last.Host)
			assert.Equal(t, "shop.local", last.Header.Get("X-Forwarded-Host"))
			assert.Equal(t, "http", last.Header.Get("X-Forwarded-Proto"))
			assert.Equal(t, "192.0.2.7", last.Header.Get("X-Forwarded-For"))
			assert.Equal(t, p, last.URL.RequestURI())
		})
	}
}

func TestRouter_BackendDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	url := backend.URL
	backend.Close()
	h, m, logs := newEdge(t, url)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cart/item/", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"detail":"Backend unavailable."}`, rec.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("proxy round trip failed").Len())

	metrics := httptest.NewRecorder()
	h.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), `storefront_proxy_errors_total{upstream="api"} 1`)
	n, err := testutil.GatherAndCount(m.Registry(), "storefront_proxy_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRouter_Bundle(t *testing.T) {
	h, _, _ := newEdge(t, "http://127.0.0.1:1")

	tests := []struct {
		name     string
		method   string
		path     string
		code     int
		body     string
		location string
	}{
		{name: "home", method: http.MethodGet, path: "/", code: http.StatusOK, body: "<div id=app></div>"},
		{name: "client route", method: http.MethodGet, path: "/products/5/argyle", code: http.StatusOK, body: "<div id=app></div>"},
		{name: "guarded route", method: http.MethodGet, path: "/staff/orders/9", code: http.StatusOK, body: "<div id=app></div>"},
		{name: "trailing slash", method: http.MethodGet, path: "/cart/", code: http.StatusOK, body: "<div id=app></div>"},
		{name: "asset", method: http.MethodGet, path: "/assets/app.js", code: http.StatusOK, body: "console.log(1)"},
		{name: "unknown", method: http.MethodGet, path: "/nope", code: http.StatusFound, location: "/"},
		{name: "directory", method: http.MethodGet, path: "/assets/", code: http.StatusFound, location: "/"},
		{name: "post", method: http.MethodPost, path: "/checkout", code: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			if tt.location != "" {
				assert.Equal(t, tt.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestRouter_MissingBundle(t *testing.T) {
	h, err := handler.NewRouter(handler.RouterConfig{APIBase: "http://127.0.0.1:1", Static: fstest.MapFS{}}, nil, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shop", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	h, _, logs := newEdge(t, "http://127.0.0.1:1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/healthz", entries[0].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestNewRouter_BadBase(t *testing.T) {
	for _, base := range []string{"", "10.0.0.47:8000", "::"} {
		_, err := handler.NewRouter(handler.RouterConfig{APIBase: base, Static: bundle}, nil, nil)
		assert.Error(t, err, base)
	}
}
