package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/client/api"
	"github.com/atinyakov/sockcs/internal/client/media"
)

// Cart endpoints.
const (
	CartPath   = "/api/cart/"
	ItemPath   = "/api/cart/item/"
	CouponPath = "/api/cart/coupon/"
)

// Syncer holds the cart snapshot and keeps it in step with the server.
// It is safe for concurrent use; the last response to land wins.
type Syncer struct {
	api   api.Doer
	media *media.Resolver
	log   *zap.Logger

	loading atomic.Bool

	mu        sync.RWMutex
	cart      Cart
	listeners map[int]func(Cart)
	nextID    int
}

// NewSyncer returns a syncer holding the empty cart. Call Reload to fetch
// the server state.
func NewSyncer(d api.Doer, r *media.Resolver, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		api:       d,
		media:     r,
		log:       log,
		cart:      Empty(),
		listeners: make(map[int]func(Cart)),
	}
}

// Snapshot returns the current cart.
func (s *Syncer) Snapshot() Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart
}

// Count is the badge number.
func (s *Syncer) Count() int { return s.Snapshot().Count }

// Subscribe registers fn for snapshot changes and returns its cancel function.
func (s *Syncer) Subscribe(fn func(Cart)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Syncer) set(c Cart) {
	s.mu.Lock()
	s.cart = c
	fns := make([]func(Cart), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Reload fetches the cart. While a reload is in flight further calls return
// immediately without a request. A successful response without a JSON body
// resets the snapshot to the empty cart.
func (s *Syncer) Reload(ctx context.Context) error {
	if !s.loading.CompareAndSwap(false, true) {
		s.log.Debug("cart reload already in flight")
		return nil
	}
	defer s.loading.Store(false)

	res, err := s.api.Do(ctx, http.MethodGet, CartPath, nil)
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.set(Normalize(res.JSON(), s.media))
	return nil
}

// AddItem adds quantity units of the product.
func (s *Syncer) AddItem(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		quantity = 1
	}
	res, err := s.api.Do(ctx, http.MethodPost, ItemPath, itemBody(productID, quantity))
	return s.apply(ctx, res, err)
}

// UpdateItemQuantity sets the line quantity with PATCH. When the PATCH fails,
// by status or in transport, the same body is sent once as a POST and the
// POST outcome is what counts.
func (s *Syncer) UpdateItemQuantity(ctx context.Context, productID string, quantity int) error {
	body := itemBody(productID, quantity)
	res, err := s.api.Do(ctx, http.MethodPatch, ItemPath, body)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || !res.OK() {
		if err != nil {
			s.log.Debug("cart PATCH failed, retrying as POST", zap.Error(err))
		} else {
			s.log.Debug("cart PATCH rejected, retrying as POST", zap.Int("status", res.Status))
		}
		res, err = s.api.Do(ctx, http.MethodPost, ItemPath, body)
	}
	return s.apply(ctx, res, err)
}

// RemoveItem deletes the product's line.
func (s *Syncer) RemoveItem(ctx context.Context, productID string) error {
	res, err := s.api.Do(ctx, http.MethodDelete, ItemPath, map[string]any{"product_id": idValue(productID)})
	return s.apply(ctx, res, err)
}

// ClearCart empties the cart.
func (s *Syncer) ClearCart(ctx context.Context) error {
	res, err := s.api.Do(ctx, http.MethodDelete, CartPath, nil)
	return s.apply(ctx, res, err)
}

// ApplyCoupon redeems code and reloads.
func (s *Syncer) ApplyCoupon(ctx context.Context, code string) error {
	res, err := s.api.Do(ctx, http.MethodPost, CouponPath, map[string]string{"code": strings.TrimSpace(code)})
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// RemoveCoupon drops the applied coupon and reloads.
func (s *Syncer) RemoveCoupon(ctx context.Context) error {
	res, err := s.api.Do(ctx, http.MethodDelete, CouponPath, nil)
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// Watch reloads every interval until ctx is done. Failures are logged.
func (s *Syncer) Watch(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Reload(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("cart reload failed", zap.Error(err))
			}
		}
	}
}

// apply replaces the snapshot with the mutation response, or reloads when
// the response carries no cart.
func (s *Syncer) apply(ctx context.Context, res *api.Response, err error) error {
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if raw := res.JSON(); raw != nil {
		s.set(Normalize(raw, s.media))
		return nil
	}
	return s.Reload(ctx)
}

func itemBody(productID string, quantity int) map[string]any {
	return map[string]any{"product_id": idValue(productID), "quantity": quantity}
}

// idValue sends numeric ids as JSON numbers.
func idValue(id string) any {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}
