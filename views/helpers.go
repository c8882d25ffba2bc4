// Package views renders the site's pages as templ components.
package views

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/eringen/spacetraveling/content"
)

// DateLayout renders dates like "15 Mar 2021".
const DateLayout = "02 Jan 2006"

var ugc = bluemonday.UGCPolicy()

// buildURL joins path segments onto a base URL, ensuring a trailing slash.
func buildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// PostPath is the site path of a post.
func PostPath(uid string) string {
	return "/post/" + url.PathEscape(uid) + "/"
}

// PostURL is the canonical URL of a post.
func PostURL(cfg SiteConfig, uid string) string {
	return buildURL(cfg.URL, "post", uid)
}

// FormatDate renders t with DateLayout, or "" when the date is unknown.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// ReadingTimeLabel formats an estimate for the post badge. Posts too short
// to estimate still show one minute.
func ReadingTimeLabel(minutes int) string {
	if minutes < 1 {
		minutes = 1
	}
	return strconv.Itoa(minutes) + " min"
}

// Fragment sanitizes a CMS markup fragment for inline rendering.
func Fragment(s string) string {
	return ugc.Sanitize(s)
}

func outOfBand(lm LoadMore) LoadMore {
	lm.OOB = true
	return lm
}

// WebsiteJsonLD produces a Schema.org WebSite JSON-LD object using cfg values.
func WebsiteJsonLD(cfg SiteConfig) map[string]any {
	data := map[string]any{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     cfg.Name,
		"url":      buildURL(cfg.URL),
	}
	if cfg.Description != "" {
		data["description"] = cfg.Description
	}
	return data
}

// BlogPostingJsonLD produces a Schema.org BlogPosting JSON-LD object for a post.
func BlogPostingJsonLD(cfg SiteConfig, post content.PostDetail) map[string]any {
	postURL := PostURL(cfg, post.ID)
	data := map[string]any{
		"@context": "https://schema.org",
		"@type":    "BlogPosting",
		"headline": post.Title,
		"url":      postURL,
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		},
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if post.PublishedAt != nil {
		data["datePublished"] = post.PublishedAt.Format(time.RFC3339)
	}
	if post.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  post.Author,
		}
	}
	if post.BannerURL != "" {
		data["image"] = post.BannerURL
	}
	return data
}
