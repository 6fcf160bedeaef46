package catalog

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// Sort orders for the shop grid.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price-asc"
	SortPriceDesc = "price-desc"
	SortName      = "name"
)

// AllCategories matches every category.
const AllCategories = "All"

// Query narrows and orders the shop grid.
type Query struct {
	Search   string
	Category string
	Sort     string
}

// Apply filters products by category and search text (name, description,
// category, brand) and sorts the result. The input is left untouched.
func (q Query) Apply(products []Product) []Product {
	out := make([]Product, 0, len(products))
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	for _, p := range products {
		if q.Category != "" && q.Category != AllCategories && p.Category != q.Category {
			continue
		}
		if needle != "" {
			hay := strings.ToLower(strings.Join([]string{p.Name, p.Description, p.Category, p.Brand}, " "))
			if !strings.Contains(hay, needle) {
				continue
			}
		}
		out = append(out, p)
	}

	switch q.Sort {
	case SortPriceAsc:
		slices.SortStableFunc(out, func(a, b Product) int { return cmp.Compare(a.Price.Float(), b.Price.Float()) })
	case SortPriceDesc:
		slices.SortStableFunc(out, func(a, b Product) int { return cmp.Compare(b.Price.Float(), a.Price.Float()) })
	case SortName:
		slices.SortStableFunc(out, func(a, b Product) int { return strings.Compare(a.Name, b.Name) })
	default:
		slices.SortStableFunc(out, func(a, b Product) int { return compareIDs(b.ID.String(), a.ID.String()) })
	}
	return out
}

// compareIDs orders numeric ids numerically and anything else as text.
func compareIDs(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(x, y)
	}
	return strings.Compare(a, b)
}

// Categories lists the distinct categories, sorted, behind AllCategories.
func Categories(products []Product) []string {
	set := map[string]struct{}{}
	for _, p := range products {
		if p.Category != "" {
			set[p.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	slices.Sort(out)
	return append([]string{AllCategories}, out...)
}

// RecFilter is the viewer's tuning of a recommendation list.
type RecFilter struct {
	Hidden map[string]bool
	Liked  map[string]bool
	// Budget caps the price when set.
	Budget *float64
}

// Visible drops hidden and over-budget items and floats liked ones to the top,
// keeping relative order otherwise.
func (f RecFilter) Visible(recs []Recommendation) []Recommendation {
	out := make([]Recommendation, 0, len(recs))
	for _, r := range recs {
		if f.Hidden[r.ID.String()] {
			continue
		}
		if f.Budget != nil && r.Price.Float() > *f.Budget {
			continue
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b Recommendation) int {
		la, lb := f.Liked[a.ID.String()], f.Liked[b.ID.String()]
		switch {
		case la == lb:
			return 0
		case la:
			return -1
		}
		return 1
	})
	return out
}
