package spacetraveling

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/content"
)

// pageQuerier is a Source that can fetch listing pages by number.
type pageQuerier interface {
	QueryPage(ctx context.Context, docType string, fields []string, n int) (content.PostPage, error)
}

// apiTimeLayout matches the CMS timestamp format.
const apiTimeLayout = "2006-01-02T15:04:05-0700"

// handleAPIPosts serves GET /api/posts?page=N, a JSON listing page whose
// next_page points at page N+1.
func (a *App) handleAPIPosts(c echo.Context) error {
	n := 1
	if raw := c.QueryParam("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "page must be a positive integer")
		}
		n = v
	}

	ctx := c.Request().Context()
	var page content.PostPage
	var err error
	if n == 1 {
		page, err = a.Listing.FirstPage(ctx)
	} else {
		pq, ok := a.Source.(pageQuerier)
		if !ok {
			return echo.NewHTTPError(http.StatusNotImplemented, "numbered pages are not supported by this source")
		}
		page, err = pq.QueryPage(ctx, content.PostType, listingFields, n)
	}
	if err != nil {
		return err
	}

	resp := apiPostsResponse{Page: n, Results: make([]apiPost, 0, len(page.Items))}
	if page.HasMore() {
		next := "/api/posts?page=" + strconv.Itoa(n+1)
		resp.NextPage = &next
	}
	for _, p := range page.Items {
		post := apiPost{
			UID: p.ID,
			Data: apiPostData{
				Title:    p.Title,
				Subtitle: p.Subtitle,
				Author:   p.Author,
			},
		}
		if p.PublishedAt != nil {
			ts := p.PublishedAt.Format(apiTimeLayout)
			post.FirstPublicationDate = &ts
		}
		resp.Results = append(resp.Results, post)
	}
	return c.JSON(http.StatusOK, resp)
}
