package staff

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
)

// Stock movement reasons.
const (
	ReasonProduction = "PRODUCTION"
	ReasonSale       = "SALE"
	ReasonAdjustment = "ADJUSTMENT"
	ReasonDamaged    = "DAMAGED"
	ReasonReturned   = "RETURNED"
)

// Reasons lists the accepted stock movement reasons.
var Reasons = []string{ReasonProduction, ReasonSale, ReasonAdjustment, ReasonDamaged, ReasonReturned}

var (
	// ErrNoProduct is returned for product operations without a product id.
	ErrNoProduct = errors.New("product is required")
	// ErrZeroDelta is returned for a stock adjustment that moves nothing.
	ErrZeroDelta = errors.New("delta must not be zero")
	// ErrBadReason is returned for a stock reason outside Reasons.
	ErrBadReason = errors.New("unknown stock reason")
)

// Product is a product as staff edit it.
type Product struct {
	ID             jsonx.ID    `json:"id"`
	SKU            jsonx.Text  `json:"sku"`
	Name           string      `json:"name"`
	PriceRetail    jsonx.Float `json:"price_retail"`
	PriceWholesale jsonx.Float `json:"price_wholesale"`
	TrackStock     jsonx.Bool  `json:"track_stock"`
	IsActive       jsonx.Bool  `json:"is_active"`
}

// Products lists every product.
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	page, err := list[Product](ctx, c, AdminPath+"products/")
	if err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// UpdateProduct replaces a product.
func (c *Client) UpdateProduct(ctx context.Context, p Product) error {
	id := strings.TrimSpace(p.ID.String())
	if id == "" {
		return ErrNoProduct
	}
	if _, err := c.call(ctx, http.MethodPut, AdminPath+"products/"+url.PathEscape(id)+"/", p); err != nil {
		return fmt.Errorf("update product %s: %w", id, err)
	}
	return nil
}

// StockLevel is a row of the stock snapshot.
type StockLevel struct {
	ProductID jsonx.ID   `json:"product_id"`
	SKU       jsonx.Text `json:"sku"`
	Name      string     `json:"name"`
	OnHand    jsonx.Int  `json:"on_hand"`
}

// Inventory is the stock snapshot with the products it can be adjusted for.
type Inventory struct {
	Snapshot []StockLevel
	Products []Product
}

// Inventory loads the snapshot and the product list together; either
// failing fails both.
func (c *Client) Inventory(ctx context.Context) (*Inventory, error) {
	var inv Inventory
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := list[StockLevel](gctx, c, AdminPath+"stock/snapshot/")
		inv.Snapshot = page.Rows
		return err
	})
	g.Go(func() error {
		rows, err := c.Products(gctx)
		inv.Products = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	return &inv, nil
}

// StockAdjustment is a manual stock movement. An empty Reason is ADJUSTMENT.
type StockAdjustment struct {
	Product string
	Delta   int
	Reason  string
	Note    string
}

func (a *StockAdjustment) validate() error {
	a.Product = strings.TrimSpace(a.Product)
	a.Reason = strings.ToUpper(strings.TrimSpace(a.Reason))
	if a.Reason == "" {
		a.Reason = ReasonAdjustment
	}
	switch {
	case a.Product == "":
		return ErrNoProduct
	case a.Delta == 0:
		return ErrZeroDelta
	}
	for _, r := range Reasons {
		if r == a.Reason {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrBadReason, a.Reason)
}

// AdjustStock records a stock movement.
func (c *Client) AdjustStock(ctx context.Context, a StockAdjustment) error {
	if err := a.validate(); err != nil {
		return err
	}
	body := map[string]any{
		"product": idValue(a.Product),
		"delta":   a.Delta,
		"reason":  a.Reason,
		"note":    a.Note,
	}
	if _, err := c.call(ctx, http.MethodPost, AdminPath+"stock/", body); err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	return nil
}
