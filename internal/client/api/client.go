// Package api is the HTTP transport shared by every storefront client
// component. It resolves paths against the backend origin, keeps the session
// and CSRF cookies in a jar, attaches the CSRF header to unsafe methods and
// reads JSON responses leniently.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const (
	// CSRFCookie is the cookie the backend issues the CSRF token in.
	CSRFCookie = "csrftoken"
	// CSRFHeader carries the token on unsafe requests.
	CSRFHeader = "X-CSRFToken"
	// CSRFProbePath is a safe endpoint whose response sets the CSRF cookie.
	CSRFProbePath = "/api/accounts/me/"

	defaultTimeout = 10 * time.Second
)

// Doer issues one request against the backend and returns its response.
// Non-2xx statuses are not errors at this level; call Response.Err.
type Doer interface {
	Do(ctx context.Context, method, path string, body any) (*Response, error)
}

// Client talks to the backend with cookie-based session credentials.
type Client struct {
	base      *url.URL
	http      *http.Client
	log       *zap.Logger
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. A jar is added when it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTransport swaps the round tripper of the default http.Client.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

// WithTimeout bounds every request. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger used for transport-level diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a Client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		base:      base,
		http:      &http.Client{Timeout: defaultTimeout},
		log:       zap.NewNop(),
		userAgent: "sockcs-shop",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// Base returns the backend origin.
func (c *Client) Base() *url.URL {
	u := *c.base
	return &u
}

// Logger returns the client's logger so wrappers can share it.
func (c *Client) Logger() *zap.Logger { return c.log }

// URL resolves path against the backend origin. Absolute http(s) URLs pass through.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base.String() + path
}

// SameOrigin reports whether path resolves onto the backend scheme and host.
// Credentials are only attached to such requests.
func (c *Client) SameOrigin(path string) bool {
	u, err := url.Parse(c.URL(path))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, c.base.Scheme) && strings.EqualFold(u.Host, c.base.Host)
}

// Cookie returns the value of the named cookie held for the backend origin.
func (c *Client) Cookie(name string) string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == name {
			if v, err := url.QueryUnescape(ck.Value); err == nil {
				return v
			}
			return ck.Value
		}
	}
	return ""
}

// CSRFToken returns the current CSRF cookie value, "" when none was issued.
func (c *Client) CSRFToken() string { return c.Cookie(CSRFCookie) }

// EnsureCSRF obtains a CSRF cookie by hitting a safe endpoint when none is held.
// Failures are ignored: the unsafe request that follows will report them.
func (c *Client) EnsureCSRF(ctx context.Context) {
	if c.CSRFToken() != "" {
		return
	}
	res, err := c.Send(ctx, http.MethodGet, CSRFProbePath, nil, nil)
	if err != nil {
		c.log.Debug("csrf probe failed", zap.Error(err))
		return
	}
	c.log.Debug("csrf probe", zap.Int("status", res.Status), zap.Bool("issued", c.CSRFToken() != ""))
}

// Do implements Doer.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	return c.DoWithHeader(ctx, method, path, body, nil)
}

// DoWithHeader is Do with extra request headers. Extra headers win over
// defaults. The CSRF header is only sent to the backend origin.
func (c *Client) DoWithHeader(ctx context.Context, method, path string, body any, header http.Header) (*Response, error) {
	method = strings.ToUpper(method)
	h := http.Header{}
	if !isSafe(method) && c.SameOrigin(path) {
		c.EnsureCSRF(ctx)
		if token := c.CSRFToken(); token != "" {
			h.Set(CSRFHeader, token)
		}
		h.Set("X-Requested-With", "XMLHttpRequest")
	}
	for k, vs := range header {
		h[k] = vs
	}
	return c.Send(ctx, method, path, body, h)
}

// Send issues the request as-is: no CSRF probe and no CSRF header. Token
// endpoints, which do not rely on the session cookie, go through here.
func (c *Client) Send(ctx context.Context, method, path string, body any, header http.Header) (*Response, error) {
	target := c.URL(path)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	c.log.Debug("api request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func isSafe(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
