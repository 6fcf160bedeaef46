// Package orders reads the customer's orders, places new ones and follows
// an order from checkout to payment confirmation.
package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
	"github.com/atinyakov/sockcs/internal/client/media"
	"github.com/atinyakov/sockcs/internal/client/money"
)

// Item is a normalized order line.
type Item struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"line_total"`
	Image     string  `json:"product_image"`
}

// Order is a normalized order. Amounts are numbers; the payload the server
// sent is kept in Raw.
type Order struct {
	ID         string          `json:"id"`
	Status     string          `json:"status,omitempty"`
	Paid       bool            `json:"paid"`
	Email      string          `json:"email,omitempty"`
	FirstName  string          `json:"first_name,omitempty"`
	LastName   string          `json:"last_name,omitempty"`
	Address    string          `json:"address,omitempty"`
	PostalCode string          `json:"postal_code,omitempty"`
	City       string          `json:"city,omitempty"`
	Created    string          `json:"created,omitempty"`
	Items      []Item          `json:"items"`
	Subtotal   float64         `json:"subtotal"`
	Discount   float64         `json:"discount"`
	Total      float64         `json:"total"`
	Raw        json.RawMessage `json:"-"`
}

// DisplayTotal is the total formatted as dollars.
func (o *Order) DisplayTotal() string { return money.FormatFloat(o.Total) }

type rawItem struct {
	ProductID    jsonx.ID        `json:"product_id"`
	Product      json.RawMessage `json:"product"`
	ID           jsonx.ID        `json:"id"`
	Name         jsonx.Text      `json:"name"`
	ProductName  jsonx.Text      `json:"product_name"`
	Price        json.RawMessage `json:"price"`
	UnitPrice    json.RawMessage `json:"unit_price"`
	Quantity     json.RawMessage `json:"quantity"`
	LineTotal    json.RawMessage `json:"line_total"`
	ProductImage string          `json:"product_image"`
	ImageURL     string          `json:"image_url"`
	Thumbnail    string          `json:"thumbnail"`
	CartImage    string          `json:"_image"`
	Image        string          `json:"image"`
}

type rawOrder struct {
	ID         jsonx.ID        `json:"id"`
	OrderID    jsonx.ID        `json:"order_id"`
	Status     jsonx.Text      `json:"status"`
	Paid       jsonx.Bool      `json:"paid"`
	Email      jsonx.Text      `json:"email"`
	FirstName  jsonx.Text      `json:"first_name"`
	LastName   jsonx.Text      `json:"last_name"`
	Address    jsonx.Text      `json:"address"`
	PostalCode jsonx.Text      `json:"postal_code"`
	City       jsonx.Text      `json:"city"`
	Created    jsonx.Text      `json:"created"`
	CreatedAt  jsonx.Text      `json:"created_at"`
	Items      json.RawMessage `json:"items"`
	Subtotal   json.RawMessage `json:"subtotal"`
	Discount   json.RawMessage `json:"discount"`
	Total      json.RawMessage `json:"total"`
}

// Normalize decodes an order payload. idOverride, when set, wins over the
// payload id. Missing line totals are price times quantity, a missing
// subtotal is the sum of lines and a missing total is subtotal minus
// discount, floored at zero.
func Normalize(raw json.RawMessage, idOverride string, r *media.Resolver) (*Order, error) {
	var ro rawOrder
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &ro); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
	}

	o := &Order{
		ID:         jsonx.FirstString(idOverride, ro.ID.String(), ro.OrderID.String()),
		Status:     ro.Status.String(),
		Paid:       bool(ro.Paid),
		Email:      ro.Email.String(),
		FirstName:  ro.FirstName.String(),
		LastName:   ro.LastName.String(),
		Address:    ro.Address.String(),
		PostalCode: ro.PostalCode.String(),
		City:       ro.City.String(),
		Created:    jsonx.FirstString(ro.Created.String(), ro.CreatedAt.String()),
		Items:      NormalizeItems(ro.Items, r),
		Raw:        raw,
	}

	var sum float64
	for _, it := range o.Items {
		sum += it.LineTotal
	}
	o.Subtotal = numberOr(ro.Subtotal, sum)
	o.Discount = jsonx.ParseNumber(ro.Discount)
	o.Total = numberOr(ro.Total, math.Max(0, o.Subtotal-o.Discount))
	return o, nil
}

// NormalizeItems decodes an array of order lines. Anything else is no lines.
func NormalizeItems(raw json.RawMessage, r *media.Resolver) []Item {
	var elems []json.RawMessage
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' || json.Unmarshal(raw, &elems) != nil {
		return []Item{}
	}
	items := make([]Item, 0, len(elems))
	for i, e := range elems {
		var ri rawItem
		if err := json.Unmarshal(e, &ri); err != nil {
			continue
		}
		price := numberOr(ri.Price, jsonx.ParseNumber(ri.UnitPrice))
		qty := jsonx.ParseNumber(ri.Quantity)
		items = append(items, Item{
			ProductID: jsonx.FirstString(ri.ProductID.String(), productRef(ri.Product), ri.ID.String(), strconv.Itoa(i)),
			Name:      jsonx.FirstString(ri.Name.String(), ri.ProductName.String(), fmt.Sprintf("Item %d", i+1)),
			Price:     price,
			Quantity:  int(qty),
			LineTotal: numberOr(ri.LineTotal, price*qty),
			Image:     r.Resolve(media.First(ri.ProductImage, ri.ImageURL, ri.Thumbnail, ri.CartImage, ri.Image)),
		})
	}
	return items
}

// productRef reads product as an id or an object carrying one.
func productRef(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if raw[0] == '{' {
		var obj struct {
			ID jsonx.ID `json:"id"`
		}
		if json.Unmarshal(raw, &obj) == nil {
			return obj.ID.String()
		}
		return ""
	}
	var id jsonx.ID
	_ = json.Unmarshal(raw, &id)
	return id.String()
}

// numberOr is the numeric value of raw when present, fallback otherwise.
func numberOr(raw json.RawMessage, fallback float64) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback
	}
	return jsonx.ParseNumber(raw)
}
