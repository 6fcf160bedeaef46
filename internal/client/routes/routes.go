// Package routes is the storefront route table: which client paths exist,
// who may open them and where everyone else is sent instead.
package routes

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Access is the audience a route is open to.
type Access int

const (
	// Public routes are open to everyone.
	Public Access = iota
	// Auth routes need a signed-in user.
	Auth
	// Staff routes need a staff user.
	Staff
)

func (a Access) String() string {
	switch a {
	case Auth:
		return "auth"
	case Staff:
		return "staff"
	default:
		return "public"
	}
}

// Route is one client route.
type Route struct {
	Name    string
	Pattern string
	Access  Access
}

// Client paths used for redirects.
const (
	Home    = "/"
	Login   = "/login"
	Account = "/account"
)

// Table lists every client route. Optional trailing segments are written as
// a second pattern.
var Table = []Route{
	{Name: "home", Pattern: "/", Access: Public},
	{Name: "shop", Pattern: "/shop", Access: Public},
	{Name: "product", Pattern: "/products/{id}", Access: Public},
	{Name: "product", Pattern: "/products/{id}/{slug}", Access: Public},
	{Name: "cart", Pattern: "/cart", Access: Public},
	{Name: "thank-you", Pattern: "/order/{id}/thank-you", Access: Public},
	{Name: "thank-you", Pattern: "/order/thank-you", Access: Public},
	{Name: "login", Pattern: "/login", Access: Public},
	{Name: "register", Pattern: "/register", Access: Public},

	{Name: "checkout", Pattern: "/checkout", Access: Auth},
	{Name: "order", Pattern: "/orders/{id}", Access: Auth},
	{Name: "orders", Pattern: "/orders", Access: Auth},
	{Name: "account", Pattern: "/account", Access: Auth},

	{Name: "staff", Pattern: "/staff", Access: Staff},
	{Name: "staff-enquiries", Pattern: "/staff/enquiries", Access: Staff},
	{Name: "staff-orders", Pattern: "/staff/orders", Access: Staff},
	{Name: "staff-order", Pattern: "/staff/orders/{id}", Access: Staff},
	{Name: "staff-products", Pattern: "/staff/products", Access: Staff},
	{Name: "staff-inventory", Pattern: "/staff/inventory", Access: Staff},
	{Name: "staff-customers", Pattern: "/staff/customers", Access: Staff},
}

var (
	mux       = chi.NewRouter()
	byPattern = make(map[string]*Route, len(Table))
)

func init() {
	noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	for i := range Table {
		r := &Table[i]
		byPattern[r.Pattern] = r
		mux.Get(r.Pattern, noop)
	}
}

// Match is a resolved client location.
type Match struct {
	Route  *Route
	Path   string
	Params map[string]string
	Query  url.Values
}

// Param returns a path parameter, "" when absent.
func (m Match) Param(key string) string { return m.Params[key] }

// Location is the path with its query string.
func (m Match) Location() string {
	if len(m.Query) == 0 {
		return m.Path
	}
	return m.Path + "?" + m.Query.Encode()
}

// Lookup resolves a location such as "/products/5/argyle" or
// "/order/thank-you?order=9". A trailing slash is ignored.
func Lookup(location string) (Match, bool) {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return Match{}, false
	}
	path := "/" + strings.Trim(u.Path, "/")

	rctx := chi.NewRouteContext()
	if !mux.Match(rctx, http.MethodGet, path) || len(rctx.RoutePatterns) == 0 {
		return Match{}, false
	}
	route, ok := byPattern[rctx.RoutePatterns[len(rctx.RoutePatterns)-1]]
	if !ok {
		return Match{}, false
	}
	m := Match{Route: route, Path: path, Params: map[string]string{}, Query: u.Query()}
	for i, k := range rctx.URLParams.Keys {
		if k != "*" {
			m.Params[k] = rctx.URLParams.Values[i]
		}
	}
	return m, true
}

// Known reports whether location is a client route.
func Known(location string) bool {
	_, ok := Lookup(location)
	return ok
}
