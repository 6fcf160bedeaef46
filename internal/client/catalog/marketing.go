package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/sockcs/internal/client/api"
	"github.com/atinyakov/sockcs/internal/client/jsonx"
)

// Marketing endpoints.
const (
	MarketingImagesPath = "/api/marketing-images/"
	BannersPath         = "/api/banners/"
)

// MarketingImage is a tile of the home page collection grid.
type MarketingImage struct {
	ID       jsonx.ID `json:"id"`
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle"`
	Image    string   `json:"image"`
}

type rawMarketing struct {
	imageRow
	Title    string `json:"title"`
	Name     string `json:"name"`
	Subtitle string `json:"subtitle"`
	Caption  string `json:"caption"`
}

func (c *Catalog) normalizeMarketing(r rawMarketing) MarketingImage {
	return MarketingImage{
		ID:       r.ID,
		Title:    jsonx.FirstString(r.Title, r.Name),
		Subtitle: jsonx.FirstString(r.Subtitle, r.Caption),
		Image:    c.media.Product(r.ref()),
	}
}

// MarketingQuery selects marketing images. With IDs set exactly those are
// fetched; otherwise the newest images, optionally of one section, up to Limit.
type MarketingQuery struct {
	IDs     []string
	Section string
	Limit   int
}

// MarketingImages never fails: ids that cannot be fetched are dropped and a
// failed list request yields an empty result.
func (c *Catalog) MarketingImages(ctx context.Context, q MarketingQuery) []MarketingImage {
	if len(q.IDs) > 0 {
		return c.marketingByID(ctx, q.IDs)
	}

	v := url.Values{"ordering": {"-id"}}
	if q.Section != "" {
		v.Set("section", q.Section)
	}
	rows, err := listRows[rawMarketing](ctx, c.api, MarketingImagesPath+"?"+v.Encode())
	if err != nil {
		c.log.Warn("marketing images unavailable", zap.Error(err))
		return []MarketingImage{}
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]MarketingImage, 0, len(rows))
	for _, r := range rows {
		out = append(out, c.normalizeMarketing(r))
	}
	return out
}

func (c *Catalog) marketingByID(ctx context.Context, ids []string) []MarketingImage {
	found := make([]*MarketingImage, len(ids))
	var g errgroup.Group
	g.SetLimit(fanout)
	for i, id := range ids {
		g.Go(func() error {
			res, err := c.api.Do(ctx, http.MethodGet, MarketingImagesPath+url.PathEscape(id)+"/", nil)
			if err == nil {
				err = res.Err()
			}
			if err != nil {
				c.log.Warn("marketing image unavailable", zap.String("id", id), zap.Error(err))
				return nil
			}
			var r rawMarketing
			if res.Decode(&r) != nil {
				return nil
			}
			m := c.normalizeMarketing(r)
			found[i] = &m
			return nil
		})
	}
	_ = g.Wait()

	out := make([]MarketingImage, 0, len(ids))
	for _, m := range found {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

// Banner is a hero banner.
type Banner struct {
	ID    jsonx.ID `json:"id"`
	Title string   `json:"title"`
	Image string   `json:"image"`
}

// Banners lists banners newest first.
func (c *Catalog) Banners(ctx context.Context) ([]Banner, error) {
	rows, err := listRows[rawMarketing](ctx, c.api, BannersPath+"?ordering=-id")
	if err != nil {
		return nil, err
	}
	out := make([]Banner, 0, len(rows))
	for _, r := range rows {
		out = append(out, Banner{
			ID:    r.ID,
			Title: jsonx.FirstString(r.Title, r.Name),
			Image: c.media.Product(jsonx.FirstString(r.Image, r.File, r.URL)),
		})
	}
	return out, nil
}

// StoryImage returns the first image of section in display order, "" when
// there is none.
func (c *Catalog) StoryImage(ctx context.Context, section string) string {
	v := url.Values{"ordering": {"ordering,-id"}}
	if section != "" {
		v.Set("section", section)
	}
	rows, err := listRows[imageRow](ctx, c.api, MarketingImagesPath+"?"+v.Encode())
	if err != nil || len(rows) == 0 {
		return ""
	}
	ref := rows[0].ref()
	if strings.TrimSpace(ref) == "" {
		return ""
	}
	return c.media.Product(ref)
}

// listRows fetches a list endpoint. A non-list body is an empty list.
func listRows[T any](ctx context.Context, d api.Doer, path string) ([]T, error) {
	res, err := d.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	page, _ := api.DecodeList[T](res)
	return page.Rows, nil
}
