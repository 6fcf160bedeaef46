// Package staff is the admin console client: dashboard figures, order
// management, product and stock maintenance, customers and enquiries. Every
// call is a bearer request through the auth session.
package staff

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/sockcs/internal/client/api"
	"github.com/atinyakov/sockcs/internal/client/jsonx"
	"github.com/atinyakov/sockcs/internal/client/media"
)

// AdminPath prefixes the staff endpoints.
const AdminPath = "/api/admin/"

// Client calls the staff endpoints. d is normally an *auth.Session.
type Client struct {
	api   api.Doer
	media *media.Resolver
	log   *zap.Logger
}

// New returns a staff client.
func New(d api.Doer, r *media.Resolver, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{api: d, media: r, log: log}
}

// call sends one request. Non-2xx responses are returned as *api.HTTPError,
// whose Body holds the server text. A 2xx without JSON yields a nil document.
func (c *Client) call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	res, err := c.api.Do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res.JSON(), nil
}

// list fetches path and decodes its rows, accepting bare and paginated lists.
// A document that is not a list is an empty page.
func list[T any](ctx context.Context, c *Client, path string) (api.Page[T], error) {
	raw, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return api.Page[T]{}, err
	}
	page, ok := api.ParseList[T](raw)
	if !ok || page.Rows == nil {
		page.Rows = []T{}
	}
	return page, nil
}

// Stats are the headline dashboard figures.
type Stats struct {
	RevenueToday   jsonx.Float `json:"revenue_today"`
	RevenueAvg7d   jsonx.Float `json:"revenue_avg_7d"`
	OrdersToday    jsonx.Int   `json:"orders_today"`
	OrdersAvg7d    jsonx.Float `json:"orders_avg_7d"`
	AOV7d          jsonx.Float `json:"aov_7d"`
	ConvRate7d     jsonx.Float `json:"conv_rate_7d"`
	CustomersToday jsonx.Int   `json:"customers_today"`
}

// SalesDay is one point of the 30 day sales series.
type SalesDay struct {
	Day     string      `json:"day"`
	Revenue jsonx.Float `json:"revenue"`
	Orders  jsonx.Int   `json:"orders"`
}

// RecentOrder is a dashboard order row.
type RecentOrder struct {
	ID        jsonx.ID   `json:"id"`
	FirstName jsonx.Text `json:"first_name"`
	LastName  jsonx.Text `json:"last_name"`
	Paid      jsonx.Bool `json:"paid"`
	Created   jsonx.Text `json:"created"`
}

// TopProduct is a best seller over the last 30 days.
type TopProduct struct {
	Name    string      `json:"name"`
	Units   jsonx.Int   `json:"units"`
	Revenue jsonx.Float `json:"revenue"`
}

// LowStock is a product running out.
type LowStock struct {
	ID    jsonx.ID   `json:"id"`
	Name  string     `json:"name"`
	SKU   jsonx.Text `json:"sku"`
	Stock jsonx.Int  `json:"stock"`
}

// EnquirySummary counts enquiries by status.
type EnquirySummary struct {
	Open     jsonx.Int `json:"open"`
	Pending  jsonx.Int `json:"pending"`
	Resolved jsonx.Int `json:"resolved"`
}

// Dashboard is the admin landing page. Sections that failed to load are
// empty and named in Failed.
type Dashboard struct {
	Stats     *Stats
	Sales     []SalesDay
	Recent    []RecentOrder
	Top       []TopProduct
	LowStock  []LowStock
	Enquiries *EnquirySummary
	Failed    []string
}

// Dashboard loads every dashboard section in parallel. A failing section
// does not fail the others; the error is returned only when all of the
// required sections failed. The enquiry summary is optional.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		d    Dashboard
		errs [6]error
	)
	var g errgroup.Group
	g.Go(func() error {
		var s Stats
		raw, err := c.call(ctx, http.MethodGet, AdminPath+"stats/", nil)
		if err == nil && raw != nil {
			err = json.Unmarshal(raw, &s)
		}
		if err == nil {
			d.Stats = &s
		}
		errs[0] = err
		return nil
	})
	g.Go(func() error {
		p, err := list[SalesDay](ctx, c, AdminPath+"sales_30d/")
		d.Sales, errs[1] = p.Rows, err
		return nil
	})
	g.Go(func() error {
		p, err := list[RecentOrder](ctx, c, AdminPath+"recent_orders/?limit=8")
		d.Recent, errs[2] = p.Rows, err
		return nil
	})
	g.Go(func() error {
		p, err := list[TopProduct](ctx, c, AdminPath+"top_products/?days=30&limit=5")
		d.Top, errs[3] = p.Rows, err
		return nil
	})
	g.Go(func() error {
		p, err := list[LowStock](ctx, c, AdminPath+"low_stock/?limit=8")
		d.LowStock, errs[4] = p.Rows, err
		return nil
	})
	g.Go(func() error {
		raw, err := c.call(ctx, http.MethodGet, AdminPath+"enquiries/summary/", nil)
		if err != nil || raw == nil {
			c.log.Debug("enquiry summary unavailable", zap.Error(err))
			return nil
		}
		var s EnquirySummary
		if json.Unmarshal(raw, &s) == nil {
			d.Enquiries = &s
		}
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := [...]string{"stats", "sales", "recent orders", "top products", "low stock"}
	var first error
	for i, name := range names {
		if errs[i] == nil {
			continue
		}
		c.log.Warn("dashboard section failed", zap.String("section", name), zap.Error(errs[i]))
		d.Failed = append(d.Failed, name)
		if first == nil {
			first = errs[i]
		}
	}
	if len(d.Failed) == len(names) {
		return nil, first
	}
	return &d, nil
}

// PctDelta is the change of cur against avg in percent. ok is false when
// avg is zero.
func PctDelta(cur, avg float64) (pct float64, ok bool) {
	if avg == 0 {
		return 0, false
	}
	return (cur - avg) / avg * 100, true
}

// idValue sends numeric ids as JSON numbers.
func idValue(id string) any {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}
