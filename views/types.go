package views

import (
	"github.com/eringen/spacetraveling/content"
)

// SiteConfig holds the site-wide settings templates read.
type SiteConfig struct {
	Name        string
	URL         string
	Description string
	Author      string
	HTMX        bool // serve /public/htmx.min.js
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
	Image       string
	Refresh     int // reload the page after this many seconds
}

// LoadMore describes the "load more" control of a listing view.
type LoadMore struct {
	ViewID  string
	CSRF    string
	HasMore bool
	Error   string
	OOB     bool // replace the control out of band in an htmx response
}

// ListingPage is the data behind the home page.
type ListingPage struct {
	Meta     PageMeta
	Items    []content.PostSummary
	LoadMore LoadMore
}

// PostPage is the data behind a single post.
type PostPage struct {
	Meta    PageMeta
	Post    content.PostDetail
	Minutes int
}
