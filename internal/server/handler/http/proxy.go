package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Backend paths forwarded to the API origin.
const (
	APIPrefix   = "/api"
	MediaPrefix = "/media"
	GraphQLPath = "/en/graphql"
)

// ErrorRecorder is told about every failed backend round trip.
type ErrorRecorder interface {
	ProxyError(upstream string)
}

// NewProxy forwards requests to target unchanged apart from the origin: the
// Host header becomes the backend host and X-Forwarded-For, -Host and -Proto
// describe the original request. Backend failures answer 502 with a JSON
// detail, the shape storefront clients already read.
func NewProxy(target *url.URL, upstream string, rec ErrorRecorder, log *zap.Logger) *httputil.ReverseProxy {
	if log == nil {
		log = zap.NewNop()
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		FlushInterval: 100 * time.Millisecond,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(r.Context().Err(), context.Canceled) {
				log.Debug("proxy request abandoned by client", zap.String("path", r.URL.Path))
				return
			}
			log.Warn("proxy round trip failed",
				zap.String("upstream", upstream),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			if rec != nil {
				rec.ProxyError(upstream)
			}
			writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "Backend unavailable."})
		},
	}
}
