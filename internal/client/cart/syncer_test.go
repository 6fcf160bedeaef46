package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/sockcs/internal/client/api"
)

type call struct {
	method string
	path   string
	body   string
}

// fakeDoer answers requests from a script keyed by "METHOD path".
type fakeDoer struct {
	mu      sync.Mutex
	calls   []call
	replies map[string][]*api.Response
	block   chan struct{}
	entered chan struct{}
}

func newFakeDoer() *fakeDoer {
	return &fakeDoer{replies: map[string][]*api.Response{}}
}

func (f *fakeDoer) reply(method, path string, res ...*api.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[method+" "+path] = append(f.replies[method+" "+path], res...)
}

func (f *fakeDoer) Do(ctx context.Context, method, path string, body any) (*api.Response, error) {
	b, _ := json.Marshal(body)
	f.mu.Lock()
	f.calls = append(f.calls, call{method, path, string(b)})
	key := method + " " + path
	var res *api.Response
	if q := f.replies[key]; len(q) > 0 {
		res = q[0]
		if len(q) > 1 {
			f.replies[key] = q[1:]
		}
	}
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if res == nil {
		return nil, errors.New("no scripted reply for " + key)
	}
	return res, nil
}

func (f *fakeDoer) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == method && c.path == path {
			n++
		}
	}
	return n
}

func jsonRes(status int, body string) *api.Response {
	return &api.Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(body),
	}
}

const twoSocks = `{"items":[{"product_id":1,"quantity":2,"line_total":"19.98"}],"subtotal":"19.98"}`

func TestReload(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodGet, CartPath, jsonRes(http.StatusOK, twoSocks))
	s := NewSyncer(d, nil, nil)

	var seen []Cart
	cancel := s.Subscribe(func(c Cart) { seen = append(seen, c) })
	defer cancel()

	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, "$19.98", s.Snapshot().DisplayTotal())
	require.Len(t, seen, 1)
}

func TestReload_OneRequestPerBurst(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodGet, CartPath, jsonRes(http.StatusOK, twoSocks))
	d.block = make(chan struct{})
	d.entered = make(chan struct{}, 1)
	s := NewSyncer(d, nil, nil)

	done := make(chan error, 1)
	go func() { done <- s.Reload(context.Background()) }()
	<-d.entered

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Reload(context.Background()), "concurrent reloads are no-ops")
	}
	close(d.block)
	require.NoError(t, <-done)

	assert.Equal(t, 1, d.count(http.MethodGet, CartPath))
	assert.Equal(t, 2, s.Count())
}

func TestReload_ErrorKeepsSnapshot(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodGet, CartPath, jsonRes(http.StatusOK, twoSocks), jsonRes(http.StatusInternalServerError, `{"detail":"boom"}`))
	s := NewSyncer(d, nil, nil)

	require.NoError(t, s.Reload(context.Background()))
	err := s.Reload(context.Background())
	assert.Equal(t, http.StatusInternalServerError, api.StatusOf(err))
	assert.Equal(t, 2, s.Count())
}

func TestReload_NoBodyEmptiesCart(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodGet, CartPath, jsonRes(http.StatusOK, twoSocks), &api.Response{Status: http.StatusNoContent})
	s := NewSyncer(d, nil, nil)

	require.NoError(t, s.Reload(context.Background()))
	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, "0.00", s.Snapshot().Total.String())
}

func TestAddItem_UsesResponse(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodPost, ItemPath, jsonRes(http.StatusOK, twoSocks))
	s := NewSyncer(d, nil, nil)

	require.NoError(t, s.AddItem(context.Background(), "1", 2))
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, 0, d.count(http.MethodGet, CartPath), "no reload when the response carries the cart")
	assert.JSONEq(t, `{"product_id":1,"quantity":2}`, d.calls[0].body)
}

func TestAddItem_EmptyBodyReloads(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodPost, ItemPath, &api.Response{Status: http.StatusCreated})
	d.reply(http.MethodGet, CartPath, jsonRes(http.StatusOK, twoSocks))
	s := NewSyncer(d, nil, nil)

	require.NoError(t, s.AddItem(context.Background(), "1", 0))
	assert.Equal(t, 1, d.count(http.MethodGet, CartPath))
	assert.JSONEq(t, `{"product_id":1,"quantity":1}`, d.calls[0].body, "quantity defaults to one")
	assert.Equal(t, 2, s.Count())
}

func TestMutationFailureLeavesState(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodGet, CartPath, jsonRes(http.StatusOK, twoSocks))
	d.reply(http.MethodPost, ItemPath, jsonRes(http.StatusBadRequest, `{"quantity":["Not enough stock."]}`))
	s := NewSyncer(d, nil, nil)
	require.NoError(t, s.Reload(context.Background()))

	err := s.AddItem(context.Background(), "1", 50)
	require.Error(t, err)
	assert.Equal(t, "Not enough stock.", api.Message(err))
	assert.Equal(t, 2, s.Count())
}

func TestUpdateItemQuantity(t *testing.T) {
	t.Run("patch accepted", func(t *testing.T) {
		d := newFakeDoer()
		d.reply(http.MethodPatch, ItemPath, jsonRes(http.StatusOK, twoSocks))
		s := NewSyncer(d, nil, nil)

		require.NoError(t, s.UpdateItemQuantity(context.Background(), "1", 2))
		assert.Equal(t, 0, d.count(http.MethodPost, ItemPath))
	})

	t.Run("falls back to post", func(t *testing.T) {
		d := newFakeDoer()
		d.reply(http.MethodPatch, ItemPath, jsonRes(http.StatusMethodNotAllowed, `{"detail":"Method \"PATCH\" not allowed."}`))
		d.reply(http.MethodPost, ItemPath, jsonRes(http.StatusOK, twoSocks))
		s := NewSyncer(d, nil, nil)

		require.NoError(t, s.UpdateItemQuantity(context.Background(), "1", 2))
		assert.Equal(t, 1, d.count(http.MethodPost, ItemPath))
		assert.Equal(t, 2, s.Count())
	})

	t.Run("patch transport failure falls back to post", func(t *testing.T) {
		d := newFakeDoer()
		d.reply(http.MethodPost, ItemPath, jsonRes(http.StatusOK, twoSocks))
		s := NewSyncer(d, nil, nil)

		require.NoError(t, s.UpdateItemQuantity(context.Background(), "1", 2))
		assert.Equal(t, 1, d.count(http.MethodPatch, ItemPath))
		assert.Equal(t, 1, d.count(http.MethodPost, ItemPath))
		assert.Equal(t, 2, s.Count())
	})

	t.Run("both rejected surfaces the post error", func(t *testing.T) {
		d := newFakeDoer()
		d.reply(http.MethodPatch, ItemPath, jsonRes(http.StatusBadRequest, `{"detail":"bad"}`))
		d.reply(http.MethodPost, ItemPath, jsonRes(http.StatusBadRequest, `{"detail":"Quantity must be positive."}`))
		s := NewSyncer(d, nil, nil)

		err := s.UpdateItemQuantity(context.Background(), "1", -1)
		require.Error(t, err)
		assert.Equal(t, "Quantity must be positive.", api.Message(err))
		assert.Equal(t, 1, d.count(http.MethodPost, ItemPath))
		assert.Equal(t, 0, s.Count())
	})

	t.Run("cancelled context is not retried", func(t *testing.T) {
		d := newFakeDoer()
		s := NewSyncer(d, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, s.UpdateItemQuantity(ctx, "1", 2), context.Canceled)
		assert.Equal(t, 0, d.count(http.MethodPost, ItemPath))
	})
}

func TestRemoveAndClear(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodDelete, ItemPath, jsonRes(http.StatusOK, `{"items":[],"subtotal":"0.00"}`))
	d.reply(http.MethodDelete, CartPath, &api.Response{Status: http.StatusNoContent})
	d.reply(http.MethodGet, CartPath, jsonRes(http.StatusOK, `{"items":[]}`))
	s := NewSyncer(d, nil, nil)

	require.NoError(t, s.RemoveItem(context.Background(), "sku-9"))
	assert.JSONEq(t, `{"product_id":"sku-9"}`, d.calls[0].body)
	require.NoError(t, s.ClearCart(context.Background()))
	assert.Equal(t, 1, d.count(http.MethodGet, CartPath))
	assert.Zero(t, s.Count())
}

func TestCoupon(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodPost, CouponPath, jsonRes(http.StatusOK, `{"ok":true}`), jsonRes(http.StatusBadRequest, `{"code":["Invalid coupon."]}`))
	d.reply(http.MethodDelete, CouponPath, &api.Response{Status: http.StatusNoContent})
	d.reply(http.MethodGet, CartPath,
		jsonRes(http.StatusOK, `{"items":[],"subtotal":"10.00","discount":"1.00","total":"9.00","coupon":{"code":"TEN"}}`),
		jsonRes(http.StatusOK, `{"items":[],"subtotal":"10.00","total":"10.00"}`),
	)
	s := NewSyncer(d, nil, nil)

	require.NoError(t, s.ApplyCoupon(context.Background(), " TEN "))
	assert.JSONEq(t, `{"code":"TEN"}`, d.calls[0].body)
	assert.JSONEq(t, `{"code":"TEN"}`, string(s.Snapshot().Coupon))

	err := s.ApplyCoupon(context.Background(), "BAD")
	assert.Equal(t, "Invalid coupon.", api.Message(err))

	require.NoError(t, s.RemoveCoupon(context.Background()))
	assert.Nil(t, s.Snapshot().Coupon)
	assert.Equal(t, 2, d.count(http.MethodGet, CartPath))
}

func TestWatch(t *testing.T) {
	d := newFakeDoer()
	d.reply(http.MethodGet, CartPath, jsonRes(http.StatusOK, twoSocks))
	s := NewSyncer(d, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Watch(ctx, 5*time.Millisecond)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return d.count(http.MethodGet, CartPath) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	assert.Equal(t, 2, s.Count())
}
