package catalog

import (
	"bytes"
	"encoding/json"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
	"github.com/atinyakov/sockcs/internal/client/media"
	"github.com/atinyakov/sockcs/internal/client/money"
)

// Product is a catalog entry with its image already resolved.
type Product struct {
	ID          jsonx.ID     `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug,omitempty"`
	Description string       `json:"description,omitempty"`
	Brand       string       `json:"brand,omitempty"`
	Category    string       `json:"category,omitempty"`
	Price       money.Amount `json:"price"`
	Stock       int          `json:"stock"`
	// Image is a fetchable URL, the placeholder when the product has none.
	Image string `json:"image"`
	// RawImage is the reference the backend sent, "" when none.
	RawImage string `json:"-"`
	// Inline holds gallery images embedded in the product payload.
	Inline []string `json:"-"`
}

// HasImage reports whether the backend sent an image reference.
func (p Product) HasImage() bool { return p.RawImage != "" }

type rawProduct struct {
	ID               jsonx.ID        `json:"id"`
	Name             string          `json:"name"`
	Slug             string          `json:"slug"`
	Description      string          `json:"description"`
	Brand            string          `json:"brand"`
	Category         json.RawMessage `json:"category"`
	CategoryName     string          `json:"category_name"`
	Price            money.Amount    `json:"price"`
	UnitPrice        money.Amount    `json:"unit_price"`
	Stock            jsonx.Int       `json:"stock"`
	Image            string          `json:"image"`
	ImageURL         string          `json:"image_url"`
	ImageURLResolved string          `json:"image_url_resolved"`
	Thumbnail        string          `json:"thumbnail"`
	File             string          `json:"file"`
	Gallery          json.RawMessage `json:"gallery"`
	Images           json.RawMessage `json:"images"`
}

// UnmarshalJSON decodes a product without resolving its images; Normalize
// resolves them against a media origin.
func (p *Product) UnmarshalJSON(b []byte) error {
	var r rawProduct
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*p = fromRaw(r, nil)
	return nil
}

func decodeProduct(raw json.RawMessage, res *media.Resolver) (Product, error) {
	var r rawProduct
	if err := json.Unmarshal(raw, &r); err != nil {
		return Product{}, err
	}
	return fromRaw(r, res), nil
}

func fromRaw(r rawProduct, res *media.Resolver) Product {
	p := Product{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		Brand:       r.Brand,
		Category:    categoryName(r.Category, r.CategoryName),
		Price:       r.Price.Or(r.UnitPrice),
		Stock:       int(r.Stock),
		RawImage:    media.First(r.ImageURLResolved, r.Image, r.ImageURL, r.Thumbnail, r.File),
	}
	p.Image = res.Product(p.RawImage)

	inline := r.Gallery
	if !isArray(inline) {
		inline = r.Images
	}
	for _, ref := range galleryRefs(inline) {
		p.Inline = append(p.Inline, res.Product(ref))
	}
	return p
}

// categoryName reads category as an object with a name, or falls back to category_name.
func categoryName(raw json.RawMessage, fallback string) string {
	var obj struct {
		Name string `json:"name"`
	}
	if len(raw) > 0 && raw[0] == '{' && json.Unmarshal(raw, &obj) == nil && obj.Name != "" {
		return obj.Name
	}
	return fallback
}

// imageRow is a gallery or marketing row; any of its fields may hold the image.
type imageRow struct {
	ID        jsonx.ID `json:"id"`
	Image     string   `json:"image"`
	ImageURL  string   `json:"image_url"`
	File      string   `json:"file"`
	URL       string   `json:"url"`
	Thumbnail string   `json:"thumbnail"`
}

func (r imageRow) ref() string {
	return media.First(r.Image, r.ImageURL, r.File, r.URL, r.Thumbnail)
}

// galleryRefs reads an array whose elements are image rows or bare strings.
func galleryRefs(raw json.RawMessage) []string {
	if !isArray(raw) {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	var refs []string
	for _, e := range elems {
		var s string
		if json.Unmarshal(e, &s) == nil {
			if s != "" {
				refs = append(refs, s)
			}
			continue
		}
		var row imageRow
		if json.Unmarshal(e, &row) == nil {
			if ref := row.ref(); ref != "" {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// dedupe drops empty and repeated entries, keeping first occurrences.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
