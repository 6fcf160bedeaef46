package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/client/cart"
	"github.com/atinyakov/sockcs/internal/client/jsonx"
)

// Payment polling defaults.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultPollTries    = 20
)

// ErrMissingField is returned by Checkout when a required field is blank.
var ErrMissingField = errors.New("missing required checkout field")

// Cart is the part of the cart syncer checkout needs.
type Cart interface {
	Count() int
	ClearCart(ctx context.Context) error
	Reload(ctx context.Context) error
}

// CheckoutForm is the shipping contact posted with a new order.
type CheckoutForm struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
}

func (f *CheckoutForm) validate() error {
	for _, v := range []*string{&f.FirstName, &f.LastName, &f.Email, &f.Address, &f.PostalCode, &f.City} {
		*v = strings.TrimSpace(*v)
		if *v == "" {
			return ErrMissingField
		}
	}
	return nil
}

// CheckoutResult tells the caller where to go next: the payment page when
// the backend opened one, else the thank-you route.
type CheckoutResult struct {
	OrderID    string
	PaymentURL string
}

// Next is the location to open after checkout.
func (r *CheckoutResult) Next() string {
	if r.PaymentURL != "" {
		return r.PaymentURL
	}
	if r.OrderID == "" {
		return "/order/thank-you"
	}
	return "/order/thank-you?" + url.Values{"order": {r.OrderID}}.Encode()
}

// Checkout places an order for the current cart and opens a payment
// session for it. A payment session that cannot be opened is not an error.
func (c *Client) Checkout(ctx context.Context, form CheckoutForm, current Cart) (*CheckoutResult, error) {
	if err := form.validate(); err != nil {
		return nil, err
	}
	if current.Count() == 0 {
		return nil, cart.ErrEmptyCart
	}

	res, err := c.api.Do(ctx, http.MethodPost, OrdersPath, form)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	var placed struct {
		ID      jsonx.ID `json:"id"`
		OrderID jsonx.ID `json:"order_id"`
	}
	_ = res.Decode(&placed)
	out := &CheckoutResult{OrderID: jsonx.FirstString(placed.ID.String(), placed.OrderID.String())}
	if out.OrderID != "" {
		c.remember(out.OrderID)
		out.PaymentURL = c.paymentURL(ctx, map[string]string{"order_id": out.OrderID})
	}
	if out.PaymentURL == "" {
		out.PaymentURL = c.paymentURL(ctx, map[string]string{})
	}
	return out, ctx.Err()
}

func (c *Client) paymentURL(ctx context.Context, body map[string]string) string {
	res, err := c.api.Do(ctx, http.MethodPost, StripePath, body)
	if err != nil || !res.OK() {
		c.log.Debug("payment session unavailable", zap.Error(err))
		return ""
	}
	var session struct {
		URL string `json:"url"`
	}
	_ = res.Decode(&session)
	return session.URL
}

// ResolveLastOrderID finds the order a thank-you view is about: hint, then
// the session's last_order_id, then the thank-you endpoint, then the last
// order endpoint, which also returns the order itself. The id found is
// remembered locally.
func (c *Client) ResolveLastOrderID(ctx context.Context, hint string) (string, *Order, error) {
	id := strings.TrimSpace(hint)
	if id == "" {
		id = c.idFrom(ctx, SessionPath, "last_order_id")
	}
	if id == "" {
		id = c.idFrom(ctx, ThankYouPath, "order")
	}

	var full *Order
	if id == "" {
		res, err := c.api.Do(ctx, http.MethodGet, LastOrderPath, nil)
		if err == nil && res.OK() {
			if raw := res.JSON(); raw != nil {
				if o, err := Normalize(raw, "", c.media); err == nil && o.ID != "" {
					id, full = o.ID, o
				}
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if id == "" {
		return "", nil, ErrNoOrder
	}
	c.remember(id)
	return id, full, nil
}

// idFrom reads one id-valued member of a JSON object endpoint.
func (c *Client) idFrom(ctx context.Context, path, key string) string {
	res, err := c.api.Do(ctx, http.MethodGet, path, nil)
	if err != nil || !res.OK() {
		return ""
	}
	var m map[string]jsonx.ID
	if res.Decode(&m) != nil {
		return ""
	}
	return m[key].String()
}

// LastOrderID returns the id remembered by the last checkout or confirmation.
func (c *Client) LastOrderID() string {
	if c.ls == nil {
		return ""
	}
	var id string
	if !c.ls.GetInto(LastOrderKey, &id) {
		return ""
	}
	return id
}

func (c *Client) remember(id string) {
	if c.ls == nil {
		return
	}
	if err := c.ls.Set(LastOrderKey, id); err != nil {
		c.log.Warn("remember last order", zap.Error(err))
		return
	}
	if err := c.ls.Save(); err != nil {
		c.log.Warn("remember last order", zap.Error(err))
	}
}

// Confirm runs the thank-you flow: resolve the order id, load the order and
// clear the cart, once per order id.
func (c *Client) Confirm(ctx context.Context, hint string, current Cart) (*Order, error) {
	id, full, err := c.ResolveLastOrderID(ctx, hint)
	if err != nil {
		return nil, err
	}
	if full == nil {
		if full, err = c.Get(ctx, id); err != nil {
			return nil, err
		}
	} else if full, err = c.withItems(ctx, full); err != nil {
		return nil, err
	}
	c.clearOnce(ctx, id, current)
	return full, nil
}

// clearOnce empties the cart the first time it is called for id. Failures
// are logged and retried on the next call.
func (c *Client) clearOnce(ctx context.Context, id string, current Cart) {
	if id == "" || current == nil {
		return
	}
	c.mu.Lock()
	if c.cleared[id] {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := current.ClearCart(ctx); err != nil {
		c.log.Warn("clear cart after order", zap.String("order", id), zap.Error(err))
		return
	}
	if err := current.Reload(ctx); err != nil {
		c.log.Debug("reload cart after order", zap.Error(err))
	}

	c.mu.Lock()
	c.cleared[id] = true
	c.mu.Unlock()
}

// WaitPaid polls the order every interval until it is paid or tries polls
// have been made, and returns the last order seen. Zero values use the
// defaults. Lines already known are kept when a poll returns none.
func (c *Client) WaitPaid(ctx context.Context, id string, every time.Duration, tries int) (*Order, error) {
	if every <= 0 {
		every = DefaultPollInterval
	}
	if tries <= 0 {
		tries = DefaultPollTries
	}

	t := time.NewTicker(every)
	defer t.Stop()

	var last *Order
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-t.C:
		}

		res, err := c.api.Do(ctx, http.MethodGet, orderPath(id), nil)
		if err == nil && res.OK() {
			if o, nerr := Normalize(res.JSON(), id, c.media); nerr == nil {
				if last != nil && len(o.Items) == 0 {
					o.Items = last.Items
					recompute(o)
				}
				last = o
				if o.Paid {
					return last, nil
				}
			}
		} else if ctx.Err() == nil {
			c.log.Debug("payment poll failed", zap.String("order", id), zap.Error(err))
		}
		if n >= tries {
			return last, nil
		}
	}
}
