package staff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
	"github.com/atinyakov/sockcs/internal/client/orders"
)

// Order list status filters.
const (
	StatusAll    = "all"
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
)

// DefaultPageSize is the admin order list page size.
const DefaultPageSize = 20

// ErrBadStatus is returned for an order filter status other than all, paid or unpaid.
var ErrBadStatus = errors.New("status must be all, paid or unpaid")

// OrderFilter selects a page of the admin order list.
type OrderFilter struct {
	Page     int
	PageSize int
	Status   string
	Query    string
}

func (f OrderFilter) values() (url.Values, error) {
	page, size := max(f.Page, 1), f.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	v := url.Values{"page": {strconv.Itoa(page)}, "page_size": {strconv.Itoa(size)}}
	switch f.Status {
	case "", StatusAll:
	case StatusPaid:
		v.Set("paid", "true")
	case StatusUnpaid:
		v.Set("paid", "false")
	default:
		return nil, ErrBadStatus
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		v.Set("search", q)
	}
	return v, nil
}

// OrderPage is one page of orders and the total across pages.
type OrderPage struct {
	Rows  []*orders.Order
	Count int
}

// Pages is the number of pages for size rows per page.
func (p OrderPage) Pages(size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	return max(1, (p.Count+size-1)/size)
}

// Orders lists orders matching f.
func (c *Client) Orders(ctx context.Context, f OrderFilter) (OrderPage, error) {
	v, err := f.values()
	if err != nil {
		return OrderPage{}, err
	}
	page, err := list[json.RawMessage](ctx, c, AdminPath+"orders/?"+v.Encode())
	if err != nil {
		return OrderPage{}, err
	}
	out := OrderPage{Rows: make([]*orders.Order, 0, len(page.Rows)), Count: page.Count}
	for _, raw := range page.Rows {
		o, err := orders.Normalize(raw, "", c.media)
		if err != nil {
			continue
		}
		out.Rows = append(out.Rows, o)
	}
	return out, nil
}

// OrderDetail is an order with its shipping block flattened.
type OrderDetail struct {
	*orders.Order
	Shipping  Shipping
	ItemCount int
}

// Order loads one order.
func (c *Client) Order(ctx context.Context, id string) (*OrderDetail, error) {
	raw, err := c.call(ctx, http.MethodGet, AdminPath+"orders/"+url.PathEscape(id)+"/", nil)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: Order %s not found", orders.ErrNoOrder, id)
	}
	o, err := orders.Normalize(raw, id, c.media)
	if err != nil {
		return nil, err
	}
	d := &OrderDetail{Order: o, Shipping: NormalizeShipping(raw)}
	for _, it := range o.Items {
		d.ItemCount += it.Quantity
	}
	return d, nil
}

// MarkPaid flags an order as paid.
func (c *Client) MarkPaid(ctx context.Context, id string) error {
	_, err := c.call(ctx, http.MethodPost, AdminPath+"orders/"+url.PathEscape(id)+"/mark_paid/", nil)
	return err
}

// Shipping is the delivery contact of an order, whatever shape the backend
// stored it in.
type Shipping struct {
	FirstName string
	LastName  string
	Company   string
	Address1  string
	Address2  string
	City      string
	State     string
	Postal    string
	Country   string
	Phone     string
	Email     string
}

// Lines renders the address block, skipping empty parts.
func (s Shipping) Lines() []string {
	var out []string
	add := func(parts ...string) {
		var kept []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				kept = append(kept, p)
			}
		}
		if len(kept) > 0 {
			out = append(out, strings.Join(kept, " "))
		}
	}
	add(s.FirstName, s.LastName)
	add(s.Company)
	add(s.Address1)
	add(s.Address2)
	add(s.City, s.State, s.Postal)
	add(s.Country)
	return out
}

type fields map[string]json.RawMessage

func object(raw json.RawMessage) fields {
	var m fields
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' || json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

// first is the first key holding a non-blank string or number.
func (m fields) first(keys ...string) string {
	for _, k := range keys {
		var t jsonx.Text
		if raw, ok := m[k]; ok && json.Unmarshal(raw, &t) == nil {
			if s := strings.TrimSpace(t.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// NormalizeShipping reads the shipping contact from an order payload. A
// nested shipping object (and the address object inside it) is searched
// first, then the order's top-level aliases.
func NormalizeShipping(raw json.RawMessage) Shipping {
	order := object(raw)
	ship := object(order["shipping"])
	if ship == nil {
		ship = fields{}
	}

	var nested fields
	for _, cand := range []json.RawMessage{ship["address"], ship["shipping_address"]} {
		if nested = object(cand); nested != nil {
			break
		}
	}
	if nested == nil {
		if addrs := object(ship["addresses"]); addrs != nil {
			if nested = object(addrs["shipping"]); nested == nil {
				nested = object(addrs["default"])
			}
		}
	}
	if nested == nil {
		if nested = object(order["shipping_address"]); nested == nil {
			nested = object(order["address"])
		}
	}
	for k, v := range nested {
		ship[k] = v
	}

	pick := func(shipKeys []string, orderKeys ...string) string {
		if s := ship.first(shipKeys...); s != "" {
			return s
		}
		return order.first(orderKeys...)
	}
	return Shipping{
		FirstName: pick([]string{"first_name", "given_name", "contact_first_name"}, "shipping_first_name", "ship_first_name", "first_name"),
		LastName:  pick([]string{"last_name", "family_name", "contact_last_name"}, "shipping_last_name", "ship_last_name", "last_name"),
		Company:   pick([]string{"company", "organization"}, "shipping_company", "ship_company", "company"),
		Address1: pick([]string{"address1", "line1", "street1", "street", "address_line1", "address_line_1", "street_address1", "addr1"},
			"shipping_address1", "ship_address1", "address", "address_line1", "addr1"),
		Address2: pick([]string{"address2", "line2", "street2", "address_line2", "address_line_2", "street_address2", "addr2"},
			"shipping_address2", "ship_address2", "address2", "addr2"),
		City:    pick([]string{"city", "locality", "town", "town_city", "city_name"}, "shipping_city", "ship_city", "city"),
		State:   pick([]string{"state", "region", "province", "state_code", "region_code", "county"}, "shipping_state", "ship_state", "state"),
		Postal:  pick([]string{"postal_code", "postcode", "zip", "zip_code"}, "shipping_postal_code", "shipping_zip", "ship_postal_code", "ship_zip", "postal_code"),
		Country: pick([]string{"country", "country_code", "country_iso", "country_name"}, "shipping_country", "ship_country", "country"),
		Phone:   pick([]string{"phone", "telephone", "mobile", "phone_number"}, "shipping_phone", "ship_phone", "phone"),
		Email:   pick([]string{"email", "contact_email", "email_address"}, "shipping_email", "ship_email", "email"),
	}
}
