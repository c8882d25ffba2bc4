package spacetraveling

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/content"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// renderSitemap lists the home page, the posts of the first listing page,
// and every post that has already been generated.
func (a *App) renderSitemap(c echo.Context, listed []content.PostSummary, stored []GeneratedPage) error {
	base := a.Config.URL
	urls := []sitemapURL{
		{Loc: BuildURL(base)},
	}
	seen := make(map[string]bool)
	add := func(uid string, lastMod string) {
		if seen[uid] {
			return
		}
		seen[uid] = true
		urls = append(urls, sitemapURL{Loc: BuildURL(base, "post", uid), LastMod: lastMod})
	}
	for _, p := range listed {
		lastMod := ""
		if p.PublishedAt != nil {
			lastMod = p.PublishedAt.Format("2006-01-02")
		}
		add(p.ID, lastMod)
	}
	for _, p := range stored {
		add(p.UID, p.GeneratedAt.Format("2006-01-02"))
	}

	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}
