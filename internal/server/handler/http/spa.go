package http

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/client/routes"
)

// SPAHandler serves the built storefront bundle. Client routes get
// index.html so the browser router can take over, other paths are served
// from the bundle when the file exists and everything else is redirected
// home.
type SPAHandler struct {
	static fs.FS
	files  http.Handler
	log    *zap.Logger
}

// NewSPAHandler serves the bundle in static.
func NewSPAHandler(static fs.FS, log *zap.Logger) *SPAHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SPAHandler{static: static, files: http.FileServerFS(static), log: log}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if routes.Known(r.URL.Path) {
		h.serveIndex(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if st, err := fs.Stat(h.static, name); err == nil && !st.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}
	http.Redirect(w, r, routes.Home, http.StatusFound)
}

func (h *SPAHandler) serveIndex(w http.ResponseWriter, r *http.Request) {
	if _, err := fs.Stat(h.static, "index.html"); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.log.Error("stat index.html", zap.Error(err))
		}
		http.Error(w, "storefront bundle not built", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, r, h.static, "index.html")
}

// Health answers the liveness probe.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
