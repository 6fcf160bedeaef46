package staff

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/sockcs/internal/client/api"
	"github.com/atinyakov/sockcs/internal/client/orders"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// recorder keeps the requests a fake backend received.
type recorder struct {
	mu   sync.Mutex
	reqs []string
	body []map[string]any
}

func (rec *recorder) add(r *http.Request) {
	var m map[string]any
	_ = json.NewDecoder(r.Body).Decode(&m)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.reqs = append(rec.reqs, r.Method+" "+r.URL.RequestURI())
	rec.body = append(rec.body, m)
}

func (rec *recorder) calls() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.reqs...)
}

func (rec *recorder) bodies() []map[string]any {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]map[string]any(nil), rec.body...)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := api.New(srv.URL)
	require.NoError(t, err)
	return New(c, nil, nil)
}

func TestDashboard(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.RequestURI() {
		case "/api/admin/stats/":
			writeJSON(w, http.StatusOK, `{"revenue_today":"120.50","revenue_avg_7d":100,"orders_today":3,"conv_rate_7d":0.034}`)
		case "/api/admin/sales_30d/":
			writeJSON(w, http.StatusOK, `[{"day":"2025-10-20","revenue":123.45,"orders":7}]`)
		case "/api/admin/recent_orders/?limit=8":
			writeJSON(w, http.StatusOK, `{"results":[{"id":4,"first_name":"Ann","paid":1}]}`)
		case "/api/admin/top_products/?days=30&limit=5":
			w.WriteHeader(http.StatusInternalServerError)
		case "/api/admin/low_stock/?limit=8":
			writeJSON(w, http.StatusOK, `[{"id":2,"name":"Wool","stock":"1","sku":null}]`)
		case "/api/admin/enquiries/summary/":
			writeJSON(w, http.StatusOK, `{"open":2,"pending":1,"resolved":5}`)
		default:
			http.NotFound(w, r)
		}
	})

	d, err := c.Dashboard(context.Background())
	require.NoError(t, err)
	require.NotNil(t, d.Stats)
	assert.Equal(t, 120.5, float64(d.Stats.RevenueToday))
	assert.Equal(t, 3, int(d.Stats.OrdersToday))
	require.Len(t, d.Sales, 1)
	assert.Equal(t, 7, int(d.Sales[0].Orders))
	require.Len(t, d.Recent, 1)
	assert.True(t, bool(d.Recent[0].Paid))
	assert.Empty(t, d.Top)
	assert.Equal(t, []string{"top products"}, d.Failed)
	require.Len(t, d.LowStock, 1)
	assert.Equal(t, 1, int(d.LowStock[0].Stock))
	require.NotNil(t, d.Enquiries)
	assert.Equal(t, 2, int(d.Enquiries.Open))

	pct, ok := PctDelta(float64(d.Stats.RevenueToday), float64(d.Stats.RevenueAvg7d))
	assert.True(t, ok)
	assert.InDelta(t, 20.5, pct, 1e-9)
	_, ok = PctDelta(1, 0)
	assert.False(t, ok)
}

func TestDashboard_AllFailed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "staff only")
	})

	_, err := c.Dashboard(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, api.StatusOf(err))
	assert.Equal(t, "staff only", api.Message(err))
}

func TestOrders(t *testing.T) {
	tests := []struct {
		name    string
		filter  OrderFilter
		want    string
		wantErr error
	}{
		{name: "defaults", want: "/api/admin/orders/?page=1&page_size=20"},
		{name: "paid", filter: OrderFilter{Page: 2, Status: StatusPaid}, want: "/api/admin/orders/?page=2&page_size=20&paid=true"},
		{name: "unpaid with query", filter: OrderFilter{PageSize: 5, Status: StatusUnpaid, Query: " ann "}, want: "/api/admin/orders/?page=1&page_size=5&paid=false&search=ann"},
		{name: "bad status", filter: OrderFilter{Status: "refunded"}, wantErr: ErrBadStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				rec.add(r)
				writeJSON(w, http.StatusOK, `{"count":41,"results":[{"id":1,"total":"3.00"},{"id":2,"paid":true}]}`)
			})

			page, err := c.Orders(context.Background(), tt.filter)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"GET " + tt.want}, rec.calls())
			assert.Equal(t, 41, page.Count)
			assert.Equal(t, 3, page.Pages(20))
			require.Len(t, page.Rows, 2)
			assert.True(t, page.Rows[1].Paid)
		})
	}
}

func TestOrderAndMarkPaid(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/orders/8/":
			writeJSON(w, http.StatusOK, `{
				"id":8, "first_name":"Ann", "address":{"line1":"1 Main St","city":"Oslo"}, "postal_code":101,
				"items":[{"name":"A","quantity":2},{"name":"B","quantity":"3"}]
			}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/admin/orders/8/mark_paid/":
			rec.add(r)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	d, err := c.Order(ctx, "8")
	require.NoError(t, err)
	assert.Equal(t, "8", d.ID)
	assert.Equal(t, 5, d.ItemCount)
	assert.Equal(t, Shipping{FirstName: "Ann", Address1: "1 Main St", City: "Oslo", Postal: "101"}, d.Shipping)
	assert.Equal(t, []string{"Ann", "1 Main St", "Oslo 101"}, d.Shipping.Lines())

	require.NoError(t, c.MarkPaid(ctx, "8"))
	assert.Equal(t, []string{"POST /api/admin/orders/8/mark_paid/"}, rec.calls())

	_, err = c.Order(ctx, "9")
	assert.Equal(t, http.StatusNotFound, api.StatusOf(err))
}

func TestNormalizeShipping(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Shipping
	}{
		{
			name: "nested shipping block wins",
			raw: `{"first_name":"Order","city":"Top","shipping":{"given_name":"Ship","address":{"street":"2 Side","zip":"999"}},
				"shipping_phone":"555"}`,
			want: Shipping{FirstName: "Ship", Address1: "2 Side", City: "Top", Postal: "999", Phone: "555"},
		},
		{
			name: "addresses container",
			raw:  `{"shipping":{"addresses":{"default":{"line1":"3 Way","country_code":"NO"}}}}`,
			want: Shipping{Address1: "3 Way", Country: "NO"},
		},
		{
			name: "flat string address",
			raw:  `{"address":"4 Road","city":"Bergen","email":"a@b.c"}`,
			want: Shipping{Address1: "4 Road", City: "Bergen", Email: "a@b.c"},
		},
		{name: "not an object", raw: `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeShipping(json.RawMessage(tt.raw)))
		})
	}
}

func TestProducts(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/products/":
			writeJSON(w, http.StatusOK, `[{"id":1,"name":"Wool","sku":"W-1","price_retail":"12.00","track_stock":true,"is_active":1}]`)
		case r.Method == http.MethodPut:
			rec.add(r)
			writeJSON(w, http.StatusOK, `{}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	rows, err := c.Products(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	p := rows[0]
	assert.Equal(t, 12.0, float64(p.PriceRetail))
	assert.True(t, bool(p.IsActive))

	p.Name = "Merino"
	require.NoError(t, c.UpdateProduct(ctx, p))
	require.Len(t, rec.calls(), 1)
	assert.Equal(t, "PUT /api/admin/products/1/", rec.calls()[0])
	assert.Equal(t, "Merino", rec.bodies()[0]["name"])
	assert.Equal(t, 12.0, rec.bodies()[0]["price_retail"])

	assert.ErrorIs(t, c.UpdateProduct(ctx, Product{Name: "x"}), ErrNoProduct)
}

func TestInventory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/admin/stock/snapshot/":
			writeJSON(w, http.StatusOK, `[{"product_id":1,"name":"Wool","on_hand":"7"}]`)
		case "/api/admin/products/":
			writeJSON(w, http.StatusOK, `[{"id":1,"name":"Wool"}]`)
		default:
			http.NotFound(w, r)
		}
	})

	inv, err := c.Inventory(context.Background())
	require.NoError(t, err)
	require.Len(t, inv.Snapshot, 1)
	assert.Equal(t, 7, int(inv.Snapshot[0].OnHand))
	assert.Len(t, inv.Products, 1)

	broken := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/admin/products/" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, `[]`)
	})
	_, err = broken.Inventory(context.Background())
	assert.Equal(t, http.StatusBadGateway, api.StatusOf(err))
}

func TestAdjustStock(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/admin/stock/" {
			rec.add(r)
			writeJSON(w, http.StatusCreated, `{"id":1}`)
			return
		}
		http.NotFound(w, r)
	})
	ctx := context.Background()

	tests := []struct {
		name    string
		adj     StockAdjustment
		wantErr error
	}{
		{name: "no product", adj: StockAdjustment{Delta: 1}, wantErr: ErrNoProduct},
		{name: "zero delta", adj: StockAdjustment{Product: "1"}, wantErr: ErrZeroDelta},
		{name: "bad reason", adj: StockAdjustment{Product: "1", Delta: 1, Reason: "LOST"}, wantErr: ErrBadReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, c.AdjustStock(ctx, tt.adj), tt.wantErr)
		})
	}
	assert.Empty(t, rec.calls())

	require.NoError(t, c.AdjustStock(ctx, StockAdjustment{Product: "3", Delta: -2, Note: "torn"}))
	require.NoError(t, c.AdjustStock(ctx, StockAdjustment{Product: "3", Delta: 5, Reason: "production"}))
	require.Len(t, rec.bodies(), 2)
	assert.Equal(t, map[string]any{"product": 3.0, "delta": -2.0, "reason": ReasonAdjustment, "note": "torn"}, rec.bodies()[0])
	assert.Equal(t, ReasonProduction, rec.bodies()[1]["reason"])
}

func TestCustomers(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/admin/customers/":
			writeJSON(w, http.StatusOK, `[{"id":1,"name":"Shop A","customer_type":"WHOLESALE","phone":12345}]`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/admin/customers/":
			rec.add(r)
			writeJSON(w, http.StatusBadRequest, `{"email":["Enter a valid email address."]}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	rows, err := c.Customers(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "12345", rows[0].Phone.String())

	assert.ErrorIs(t, c.CreateCustomer(ctx, Customer{Name: "  "}), ErrNoName)

	err = c.CreateCustomer(ctx, Customer{ID: "9", Name: "Ann", Email: "bad"})
	assert.Equal(t, "Enter a valid email address.", api.Message(err))
	require.Len(t, rec.bodies(), 1)
	assert.Equal(t, CustomerRetail, rec.bodies()[0]["customer_type"])
	assert.NotContains(t, rec.bodies()[0], "id")
}

func TestEnquiries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("page_size"))
		writeJSON(w, http.StatusOK, `{"results":[
			{"pk":7,"title":"Size exchange","user":{"email":"mike@example.com"},"created_at":"2025-10-22T21:58:01Z","state":"waiting"},
			{"subject":"Test","customer_email":"c@example.com","status":"Closed"},
			{"status":"escalated"}
		]}`)
	})

	rows, err := c.Enquiries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Enquiry{
		{ID: "7", Email: "mike@example.com", Subject: "Size exchange", Created: "2025-10-22 21:58:01", Status: EnquiryPending},
		{ID: "2", Email: "c@example.com", Subject: "Test", Status: EnquiryResolved},
		{ID: "3", Email: "unknown", Subject: "(no subject)", Status: "escalated"},
	}, rows)

	assert.Equal(t, EnquirySummary{Pending: 1, Resolved: 1}, Summarize(rows))
	assert.Len(t, FilterEnquiries(rows, "EXAMPLE", StatusAll), 2)
	assert.Len(t, FilterEnquiries(rows, "", EnquiryResolved), 1)
	assert.Empty(t, FilterEnquiries(rows, "mike", EnquiryResolved))
}

func TestEnquiries_Forbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Authentication credentials were not provided."}`)
	})
	_, err := c.Enquiries(context.Background())
	assert.True(t, api.IsUnauthorized(err))
}

func TestOrder_NoBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	_, err := c.Order(context.Background(), "1")
	assert.ErrorIs(t, err, orders.ErrNoOrder)
}
