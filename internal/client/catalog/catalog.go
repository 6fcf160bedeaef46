// Package catalog fetches products, gallery and marketing images and
// recommendations for the storefront views.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/sockcs/internal/client/api"
	"github.com/atinyakov/sockcs/internal/client/media"
)

// Catalog endpoints.
const (
	ProductsPath      = "/api/products/"
	ProductImagesPath = "/api/product-images/"
)

// fanout bounds the parallel requests of one call.
const fanout = 6

// Catalog reads the public catalog. It holds no state beyond its dependencies.
type Catalog struct {
	api        api.Doer
	media      *media.Resolver
	graphqlURL string
	log        *zap.Logger
}

// New returns a catalog reading through d. graphqlURL is the recommendations
// endpoint; an empty value disables Recommendations.
func New(d api.Doer, r *media.Resolver, graphqlURL string, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{api: d, media: r, graphqlURL: graphqlURL, log: log}
}

// List returns every product.
func (c *Catalog) List(ctx context.Context) ([]Product, error) {
	res, err := c.api.Do(ctx, http.MethodGet, ProductsPath, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	page, ok := api.DecodeList[json.RawMessage](res)
	if !ok {
		return []Product{}, nil
	}
	out := make([]Product, 0, len(page.Rows))
	for _, raw := range page.Rows {
		p, err := decodeProduct(raw, c.media)
		if err != nil {
			c.log.Debug("skipping malformed product", zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Get returns one product.
func (c *Catalog) Get(ctx context.Context, id string) (*Product, error) {
	res, err := c.api.Do(ctx, http.MethodGet, ProductsPath+url.PathEscape(id)+"/", nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	raw := res.JSON()
	if raw == nil {
		return nil, fmt.Errorf("get product %s: %w", id, api.ErrNoJSON)
	}
	p, err := decodeProduct(raw, c.media)
	if err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	return &p, nil
}

// Gallery returns the product's gallery image references in id order,
// unresolved.
func (c *Catalog) Gallery(ctx context.Context, id string) ([]string, error) {
	q := url.Values{"product": {id}, "ordering": {"id"}}
	res, err := c.api.Do(ctx, http.MethodGet, ProductImagesPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("gallery %s: %w", id, err)
	}
	page, ok := api.DecodeList[imageRow](res)
	if !ok {
		return nil, nil
	}
	refs := make([]string, 0, len(page.Rows))
	for _, row := range page.Rows {
		if ref := row.ref(); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// Detail is a product with every image it can show, main image first.
type Detail struct {
	Product
	Images []string
}

// Detail loads a product together with its gallery. The gallery endpoint is
// optional: its failure leaves only the main and inline images.
func (c *Catalog) Detail(ctx context.Context, id string) (*Detail, error) {
	p, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	refs, err := c.Gallery(ctx, id)
	if err != nil {
		c.log.Debug("gallery unavailable", zap.String("product", id), zap.Error(err))
	}

	var all []string
	if p.HasImage() {
		all = append(all, p.Image)
	}
	for _, ref := range refs {
		all = append(all, c.media.Product(ref))
	}
	all = append(all, p.Inline...)
	all = dedupe(all)
	if len(all) == 0 {
		all = []string{p.Image}
	}
	return &Detail{Product: *p, Images: all}, nil
}

// BestImage picks the image to show for a product: the product's own
// reference, else the first gallery row. It returns "" when neither exists
// or the lookups fail.
func (c *Catalog) BestImage(ctx context.Context, id string) string {
	p, err := c.Get(ctx, id)
	if err != nil {
		c.log.Debug("best image lookup failed", zap.String("product", id), zap.Error(err))
		return ""
	}
	return c.bestImage(ctx, *p)
}

func (c *Catalog) bestImage(ctx context.Context, p Product) string {
	if p.HasImage() {
		return p.Image
	}
	refs, err := c.Gallery(ctx, p.ID.String())
	if err != nil || len(refs) == 0 {
		return ""
	}
	return c.media.Product(refs[0])
}

// Featured returns the first limit products with their best image resolved.
// Products without any image get the placeholder.
func (c *Catalog) Featured(ctx context.Context, limit int) ([]Product, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanout)
	for i := range all {
		g.Go(func() error {
			if img := c.bestImage(gctx, all[i]); img != "" {
				all[i].Image = img
			} else {
				all[i].Image = c.media.Product("")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, ctx.Err()
}
