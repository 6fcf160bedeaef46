package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/client/api"
	"github.com/atinyakov/sockcs/internal/client/media"
	"github.com/atinyakov/sockcs/internal/client/storage"
)

// Order endpoints.
const (
	OrdersPath     = "/api/orders/"
	RecentPath     = "/api/orders/recent/"
	ThankYouPath   = "/api/orders/thank-you/"
	LastOrderPath  = "/api/orders/last/?full=1"
	OrderItemsPath = "/api/order-items/"
	SessionPath    = "/api/session/"
	StripePath     = "/api/checkout/stripe-session/"
)

// LastOrderKey is the local storage key remembering the most recent order id.
const LastOrderKey = "last_order_id"

// ErrNoOrder is returned when no order id can be resolved or an order does not exist.
var ErrNoOrder = errors.New("no order id available")

var idLike = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Client reads and places orders.
type Client struct {
	api   api.Doer
	ls    *storage.LocalStorage
	media *media.Resolver
	log   *zap.Logger

	mu      sync.Mutex
	cleared map[string]bool
}

// New returns an orders client. ls may be nil, in which case the last order
// id is not remembered.
func New(d api.Doer, ls *storage.LocalStorage, r *media.Resolver, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{api: d, ls: ls, media: r, log: log, cleared: map[string]bool{}}
}

func orderPath(id string) string { return OrdersPath + url.PathEscape(id) + "/" }

// Items loads the lines of an order, trying in turn the nested items
// endpoint, the flat order-items resource, the lines endpoint and the items
// embedded in the order detail. The first non-empty list wins. When every
// source fails the result is empty; only a cancelled ctx is an error.
func (c *Client) Items(ctx context.Context, id string) ([]Item, error) {
	sources := []string{
		orderPath(id) + "items/",
		OrderItemsPath + "?" + url.Values{"order": {id}, "page_size": {"200"}}.Encode(),
		orderPath(id) + "lines/",
	}
	for _, path := range sources {
		rows, ok := c.getList(ctx, path)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok && len(rows) > 0 {
			return NormalizeItems(rows, c.media), nil
		}
		c.log.Debug("order items source empty", zap.String("path", path))
	}

	res, err := c.api.Do(ctx, http.MethodGet, orderPath(id), nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err == nil && res.OK() {
		var detail struct {
			Items json.RawMessage `json:"items"`
		}
		if res.Decode(&detail) == nil {
			return NormalizeItems(detail.Items, c.media), nil
		}
	}
	return []Item{}, nil
}

// getList fetches path and returns its rows as a raw array.
func (c *Client) getList(ctx context.Context, path string) (json.RawMessage, bool) {
	res, err := c.api.Do(ctx, http.MethodGet, path, nil)
	if err != nil || !res.OK() {
		return nil, false
	}
	page, ok := api.DecodeList[json.RawMessage](res)
	if !ok {
		return nil, false
	}
	rows, err := json.Marshal(page.Rows)
	if err != nil {
		return nil, false
	}
	return rows, len(page.Rows) > 0
}

// Recent lists the customer's latest orders: /recent/ when it returns an
// array, else the five newest from the list endpoint.
func (c *Client) Recent(ctx context.Context) ([]*Order, error) {
	res, err := c.api.Do(ctx, http.MethodGet, RecentPath, nil)
	if err != nil {
		return nil, err
	}
	if raw := res.JSON(); res.OK() && isArray(raw) {
		return c.normalizeList(raw), nil
	}

	res, err = c.api.Do(ctx, http.MethodGet, OrdersPath+"?limit=5&ordering=-created", nil)
	if err != nil {
		return nil, err
	}
	return c.rows(res), nil
}

// Search finds orders. An empty query lists recent orders, an id-like query
// opens that order directly, anything else is a full-text search.
func (c *Client) Search(ctx context.Context, q string) ([]*Order, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return c.Recent(ctx)
	}
	if idLike.MatchString(q) {
		o, err := c.Get(ctx, q)
		if err != nil {
			return nil, err
		}
		return []*Order{o}, nil
	}

	v := url.Values{"search": {q}, "ordering": {"-created"}}
	res, err := c.api.Do(ctx, http.MethodGet, OrdersPath+"?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.rows(res), nil
}

// Get loads one order. Orders without embedded lines get them from Items.
func (c *Client) Get(ctx context.Context, id string) (*Order, error) {
	res, err := c.api.Do(ctx, http.MethodGet, orderPath(id), nil)
	if err != nil {
		return nil, err
	}
	raw := res.JSON()
	if !res.OK() || raw == nil {
		msg := fmt.Sprintf("Order %s not found", id)
		var he *api.HTTPError
		if errors.As(res.Err(), &he) && he.Detail != "" {
			msg = he.Detail
		}
		return nil, fmt.Errorf("%w: %s", ErrNoOrder, msg)
	}
	o, err := Normalize(raw, id, c.media)
	if err != nil {
		return nil, err
	}
	return c.withItems(ctx, o)
}

func (c *Client) withItems(ctx context.Context, o *Order) (*Order, error) {
	if len(o.Items) > 0 {
		return o, nil
	}
	items, err := c.Items(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		o.Items = items
		recompute(o)
	}
	return o, nil
}

// recompute re-derives amounts the payload left out from the current lines.
func recompute(o *Order) {
	var sum float64
	for _, it := range o.Items {
		sum += it.LineTotal
	}
	if !present(o.Raw, "subtotal") {
		o.Subtotal = sum
	}
	if !present(o.Raw, "total") {
		o.Total = max(0, o.Subtotal-o.Discount)
	}
}

func (c *Client) rows(res *api.Response) []*Order {
	if !res.OK() {
		return []*Order{}
	}
	page, ok := api.DecodeList[json.RawMessage](res)
	if !ok {
		return []*Order{}
	}
	raw, _ := json.Marshal(page.Rows)
	return c.normalizeList(raw)
}

func (c *Client) normalizeList(raw json.RawMessage) []*Order {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return []*Order{}
	}
	out := make([]*Order, 0, len(elems))
	for _, e := range elems {
		o, err := Normalize(e, "", c.media)
		if err != nil {
			continue
		}
		out = append(out, o)
	}
	return out
}

func isArray(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '['
}

// present reports whether obj has a non-null member key.
func present(obj json.RawMessage, key string) bool {
	var m map[string]json.RawMessage
	if json.Unmarshal(obj, &m) != nil {
		return false
	}
	v, ok := m[key]
	return ok && string(v) != "null"
}
