// Package cart mirrors the server-side shopping cart. The server is the
// source of truth: every mutation replaces the local snapshot with the
// cart the server returns.
package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
	"github.com/atinyakov/sockcs/internal/client/media"
	"github.com/atinyakov/sockcs/internal/client/money"
)

// ErrEmptyCart is returned by operations that need at least one item.
var ErrEmptyCart = errors.New("cart is empty")

// Item is one cart line. Image is already resolved to a fetchable URL.
type Item struct {
	ID        jsonx.ID     `json:"id,omitempty"`
	ProductID jsonx.ID     `json:"product_id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug,omitempty"`
	Price     money.Amount `json:"price"`
	Quantity  int          `json:"quantity"`
	LineTotal money.Amount `json:"line_total"`
	Image     string       `json:"image"`
}

// Cart is a normalized snapshot. Subtotal, Discount and Total are always set.
type Cart struct {
	Items    []Item          `json:"items"`
	Subtotal money.Amount    `json:"subtotal"`
	Discount money.Amount    `json:"discount"`
	Total    money.Amount    `json:"total"`
	Coupon   json.RawMessage `json:"coupon"`
	Count    int             `json:"count"`

	totals Totals
}

// Totals are the cart amounts as numbers.
type Totals struct {
	Subtotal float64
	Discount float64
	Total    float64
}

// Empty returns the cart shown before the first load.
func Empty() Cart {
	return Cart{
		Items:    []Item{},
		Subtotal: money.Of(money.Zero),
		Discount: money.Of(money.Zero),
		Total:    money.Of(money.Zero),
	}
}

// Totals returns the numeric amounts. A subtotal the server left out is the
// sum of line totals, and a missing total is subtotal minus discount, never
// below zero.
func (c Cart) Totals() Totals { return c.totals }

// DisplayTotal is the total formatted as dollars.
func (c Cart) DisplayTotal() string { return money.Format(c.Total.String()) }

// Find returns the line for productID.
func (c Cart) Find(productID string) (Item, bool) {
	for _, it := range c.Items {
		if it.ProductID.String() == productID {
			return it, true
		}
	}
	return Item{}, false
}

type rawItem struct {
	ID           jsonx.ID     `json:"id"`
	ProductID    jsonx.ID     `json:"product_id"`
	Product      jsonx.ID     `json:"product"`
	Name         string       `json:"name"`
	ProductName  string       `json:"product_name"`
	Slug         string       `json:"slug"`
	Price        money.Amount `json:"price"`
	UnitPrice    money.Amount `json:"unit_price"`
	Quantity     jsonx.Int    `json:"quantity"`
	LineTotal    money.Amount `json:"line_total"`
	Image        string       `json:"_image"`
	ProductImage string       `json:"product_image"`
	PlainImage   string       `json:"image"`
	ImageURL     string       `json:"image_url"`
}

type rawCart struct {
	Items     json.RawMessage `json:"items"`
	Subtotal  money.Amount    `json:"subtotal"`
	Discount  money.Amount    `json:"discount"`
	Total     money.Amount    `json:"total"`
	Coupon    json.RawMessage `json:"coupon"`
	CartCount json.RawMessage `json:"cart_count"`
	Count     json.RawMessage `json:"count"`
}

// Normalize builds a snapshot from a server payload. A nil or non-object
// payload yields the empty cart. Count prefers a numeric cart_count, then a
// numeric count, then the sum of item quantities.
func Normalize(raw json.RawMessage, r *media.Resolver) Cart {
	c := Empty()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return c
	}
	var rc rawCart
	if err := json.Unmarshal(raw, &rc); err != nil {
		return c
	}

	var sum float64
	for _, elem := range itemList(rc.Items) {
		var ri rawItem
		if err := json.Unmarshal(elem, &ri); err != nil {
			continue
		}
		it := Item{
			ID:        ri.ID,
			ProductID: jsonx.ID(jsonx.FirstString(ri.ProductID.String(), ri.Product.String())),
			Name:      jsonx.FirstString(ri.Name, ri.ProductName),
			Slug:      ri.Slug,
			Price:     ri.Price.Or(ri.UnitPrice),
			Quantity:  int(ri.Quantity),
			LineTotal: ri.LineTotal,
			Image:     r.Resolve(media.First(ri.Image, ri.ProductImage, ri.PlainImage, ri.ImageURL)),
		}
		line := it.LineTotal.Float()
		if !it.LineTotal.Valid() {
			line = it.Price.Float() * float64(it.Quantity)
		}
		sum += line
		c.Items = append(c.Items, it)
	}

	c.Count = derivedCount(c.Items)
	switch {
	case jsonx.IsNumber(rc.CartCount):
		c.Count = int(jsonx.ParseNumber(rc.CartCount))
	case jsonx.IsNumber(rc.Count):
		c.Count = int(jsonx.ParseNumber(rc.Count))
	}

	zero := money.Of(money.Zero)
	c.Subtotal = rc.Subtotal.Or(zero)
	c.Discount = rc.Discount.Or(zero)
	c.Total = rc.Total.Or(rc.Subtotal).Or(zero)
	if isNull(rc.Coupon) {
		c.Coupon = nil
	} else {
		c.Coupon = rc.Coupon
	}

	c.totals.Subtotal = sum
	if rc.Subtotal.Valid() {
		c.totals.Subtotal = rc.Subtotal.Float()
	}
	c.totals.Discount = rc.Discount.Float()
	c.totals.Total = math.Max(0, c.totals.Subtotal-c.totals.Discount)
	if rc.Total.Valid() {
		c.totals.Total = rc.Total.Float()
	}
	return c
}

func derivedCount(items []Item) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

func itemList(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
