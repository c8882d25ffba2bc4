package spacetraveling

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/paginator"
	"github.com/eringen/spacetraveling/views"
)

const (
	msgViewExpired = "Esta página expirou. Recarregue para ver mais posts."
	msgLoadFailed  = "Não foi possível carregar mais posts. Tente novamente."
)

func (a *App) handleHome(c echo.Context) error {
	page, err := a.Listing.FirstPage(c.Request().Context())
	if err != nil {
		return err
	}
	pager := paginator.New(page, a.Source)
	id := a.viewSessions.Open(pager)
	return a.renderListing(c, id, pager.Snapshot(), "")
}

// renderListing renders the home page holding every item of a view.
func (a *App) renderListing(c echo.Context, id string, st paginator.State, errMsg string) error {
	return Render(c, a.Views.Home(views.ListingPage{
		Meta: views.PageMeta{
			Title:       "Posts | " + a.Config.Name,
			Description: a.Config.Description,
			URL:         BuildURL(a.Config.URL),
			OGType:      "website",
		},
		Items: st.Items,
		LoadMore: views.LoadMore{
			ViewID:  id,
			CSRF:    CsrfToken(c),
			HasMore: st.HasMore(),
			Error:   errMsg,
		},
	}))
}

// handleLoadMore appends the next page to a view. htmx requests get the new
// items as a fragment; plain form posts get the whole listing back.
func (a *App) handleLoadMore(c echo.Context) error {
	if !a.moreLimiter.Allow(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many requests")
	}
	htmx := isHTMX(c)

	id := c.FormValue("view")
	pager, ok := a.viewSessions.Get(id)
	if !ok {
		if !htmx {
			return c.Redirect(http.StatusSeeOther, "/")
		}
		return a.renderLoadMoreError(c, msgViewExpired)
	}

	added, st, err := pager.LoadMore(c.Request().Context())
	errMsg := ""
	switch {
	case err == nil, errors.Is(err, paginator.ErrNoMorePages):
	case errors.Is(err, paginator.ErrLoadInFlight), errors.Is(err, paginator.ErrStalePage):
		if htmx {
			return c.NoContent(http.StatusNoContent)
		}
	default:
		c.Logger().Errorf("load more for view %s: %v", id, err)
		if htmx {
			return a.renderLoadMoreError(c, msgLoadFailed)
		}
		errMsg = msgLoadFailed
	}

	if !htmx {
		return a.renderListing(c, id, pager.Snapshot(), errMsg)
	}
	return Render(c, a.Views.LoadMore(added, views.LoadMore{
		ViewID:  id,
		CSRF:    CsrfToken(c),
		HasMore: st.HasMore(),
	}))
}

func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

// renderLoadMoreError sends the message to the error slot under the
// control, leaving the list and the control untouched.
func (a *App) renderLoadMoreError(c echo.Context, msg string) error {
	h := c.Response().Header()
	h.Set("HX-Retarget", "#load-more-error")
	h.Set("HX-Reswap", "innerHTML")
	return Render(c, a.Views.LoadMoreError(msg))
}

func (a *App) handlePost(c echo.Context) error {
	uid := c.Param("uid")
	if !a.Pages.Known(uid) && !a.missLimiter.Allow(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many requests")
	}
	post, status, err := a.Pages.Lookup(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	switch status {
	case PagePending:
		c.Response().Header().Set("Cache-Control", "no-store")
		return RenderStatus(c, http.StatusAccepted, a.Views.Loading(uid))
	case PageMissing:
		return RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
	}

	meta := views.PageMeta{
		Title:  post.Title + " | " + a.Config.Name,
		URL:    BuildURL(a.Config.URL, "post", uid),
		OGType: "article",
		Image:  post.BannerURL,
	}
	if post.Author != "" {
		meta.Description = fmt.Sprintf("%s, por %s", post.Title, post.Author)
	}
	return Render(c, a.Views.Post(views.PostPage{
		Meta:    meta,
		Post:    post,
		Minutes: a.Estimator.Estimate(post.Content),
	}))
}

func (a *App) handleSitemap(c echo.Context) error {
	page, err := a.Listing.FirstPage(c.Request().Context())
	if err != nil {
		return err
	}
	stored, err := a.Store.ListPages()
	if err != nil {
		return err
	}
	return a.renderSitemap(c, page.Items, stored)
}

func (a *App) handleFeed(c echo.Context) error {
	page, err := a.Listing.FirstPage(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, page.Items)
}

func handlePostIndexRedirect(c echo.Context) error {
	return c.Redirect(http.StatusMovedPermanently, "/")
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.staticDir + "/favicon.svg")
}

func (a *App) handleRobots(c echo.Context) error {
	body := "User-agent: *\nAllow: /\n\nSitemap: " + strings.TrimRight(a.Config.URL, "/") + "/sitemap.xml\n"
	return c.String(http.StatusOK, body)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		if !isHTTPError(err) {
			c.Logger().Errorf("api error: %v", err)
		}
		a.Echo.DefaultHTTPErrorHandler(err, c)
		return
	}

	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if (ok && he.Code == http.StatusNotFound) || errors.Is(err, content.ErrNotFound) {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}

func isHTTPError(err error) bool {
	var he *echo.HTTPError
	return errors.As(err, &he)
}
