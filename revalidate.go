package spacetraveling

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// revalidateRequest is the part of a CMS webhook payload we read.
type revalidateRequest struct {
	Type   string `json:"type"`
	Secret string `json:"secret"`
}

type revalidateResponse struct {
	Revalidating int `json:"revalidating"`
}

// handleRevalidate serves POST /api/revalidate. A call carrying the shared
// secret drops the cached listing and not-found markers, then regenerates
// every stored post in the background. Failed attempts are rate-limited
// per IP.
func (a *App) handleRevalidate(c echo.Context) error {
	if a.Config.RevalidateSecret == "" {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	ip := c.RealIP()
	if !a.revalidateLimiter.Check(ip) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many failed attempts")
	}

	var req revalidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	secret := req.Secret
	if h := c.Request().Header.Get("X-Revalidate-Secret"); h != "" {
		secret = h
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(a.Config.RevalidateSecret)) != 1 {
		a.revalidateLimiter.Record(ip)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret")
	}

	a.Listing.Invalidate()
	a.Pages.ForgetMissing()
	pages, err := a.Store.ListPages()
	if err != nil {
		return err
	}
	for _, p := range pages {
		a.Pages.start(p.UID, false)
	}
	c.Logger().Infof("revalidate (%s): regenerating %d pages", req.Type, len(pages))
	return c.JSON(http.StatusAccepted, revalidateResponse{Revalidating: len(pages)})
}
