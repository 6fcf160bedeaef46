// Package media turns the image references the backend returns (absolute
// URLs, /media/ paths, bare storage keys) into URLs a client can fetch.
package media

import (
	"net/url"
	"regexp"
	"strings"
)

// Placeholder is shown for products and items without an image.
const Placeholder = "/media/placeholder.png"

var (
	passthrough = regexp.MustCompile(`(?i)^(https?:|data:|blob:)`)
	storageDir  = regexp.MustCompile(`(?i)^(products|marketing|gallery)/`)
	imageFile   = regexp.MustCompile(`(?i)^[\w\-]+\.(jpe?g|png|gif|webp)$`)
)

// Resolver prefixes media paths with an origin. The zero value yields
// origin-relative paths, which the edge server proxies to the backend.
type Resolver struct {
	origin string
	api    *url.URL
}

// New returns a resolver. origin prefixes /media/ paths; apiBase is the
// backend used by SameOrigin. Either may be empty.
func New(origin, apiBase string) *Resolver {
	r := &Resolver{origin: strings.TrimRight(origin, "/")}
	if apiBase != "" {
		if u, err := url.Parse(apiBase); err == nil && u.Host != "" {
			r.api = u
		}
	}
	return r
}

// Resolve maps u onto a fetchable URL: empty becomes the placeholder,
// http(s)/data/blob URLs pass through, anything else lands under /media/.
func (r *Resolver) Resolve(u string) string {
	s := strings.TrimSpace(u)
	if s == "" {
		return r.withOrigin(Placeholder)
	}
	if passthrough.MatchString(s) {
		return s
	}
	return r.withOrigin(mediaPath(s))
}

// Product resolves a catalog image reference. Unlike Resolve it only
// treats known storage prefixes and bare image file names as media and
// rewrites absolute URLs onto the API host.
func (r *Resolver) Product(u string) string {
	s := strings.TrimSpace(u)
	switch {
	case s == "":
		return r.withOrigin(Placeholder)
	case passthrough.MatchString(s):
		return r.SameOrigin(s)
	case strings.HasPrefix(s, "/media/"):
		return r.SameOrigin(s)
	case storageDir.MatchString(s), imageFile.MatchString(s):
		return r.SameOrigin("/media/" + s)
	}
	return s
}

// SameOrigin rewrites an absolute URL onto the API scheme and host and
// prefixes bare /media/ paths with the API base. Other input is returned as is.
func (r *Resolver) SameOrigin(u string) string {
	if u == "" || r == nil {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		if r.api != nil && strings.HasPrefix(u, "/media/") {
			return strings.TrimRight(r.api.String(), "/") + u
		}
		return u
	}
	if r.api == nil {
		return u
	}
	parsed.Scheme = r.api.Scheme
	parsed.Host = r.api.Host
	return parsed.String()
}

// First returns the first non-empty reference among candidates.
func First(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

func (r *Resolver) withOrigin(path string) string {
	if r == nil || r.origin == "" {
		return path
	}
	return r.origin + path
}

func mediaPath(s string) string {
	if strings.HasPrefix(s, "/media/") {
		return s
	}
	return "/media/" + strings.TrimLeft(s, "/")
}
