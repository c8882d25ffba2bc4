// Package spacetraveling is a server-rendered blog that reads its posts from
// a Prismic repository. It is built with Go, Echo, and templ.
//
// Pages are regenerated from the CMS on a fixed interval. Listings grow with
// "load more" requests that are tracked per rendered page, and every post
// shows an estimated reading time.
package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/readingtime"
	"github.com/eringen/spacetraveling/views"
)

// listingFields are the post fields a listing needs.
var listingFields = []string{"title", "subtitle", "author"}

// maxViews bounds how many page views are tracked at once.
const maxViews = 10000

// ViewFuncs holds the templ components the App renders. Any nil entry is
// filled with the default component from the views package.
type ViewFuncs struct {
	Home          func(page views.ListingPage) templ.Component
	LoadMore      func(items []content.PostSummary, lm views.LoadMore) templ.Component
	LoadMoreError func(message string) templ.Component
	Post          func(page views.PostPage) templ.Component
	Loading       func(uid string) templ.Component
	NotFound      func() templ.Component
	ServerError   func() templ.Component
}

// App is the central spacetraveling application. It wires together the CMS
// source, the page store, caches, handlers, middleware, and templates.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Source    content.Source
	Store     *Store
	Listing   *ListingCache
	Pages     *Generator
	Estimator *readingtime.Estimator
	Views     ViewFuncs

	viewSessions      *ViewSessions
	moreLimiter       *RequestLimiter
	missLimiter       *RequestLimiter
	revalidateLimiter *RequestLimiter
	customRoutes      []func(*App)
	staticDir         string
	opened            bool
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Estimator: readingtime.New(nil),
		staticDir: "public",
	}
	a.Echo.HideBanner = true
	a.Echo.Debug = cfg.IsDevelopment()

	for _, opt := range opts {
		opt(a)
	}
	a.Views = a.Views.withDefaults(a.siteConfig())
	return a
}

func (v ViewFuncs) withDefaults(cfg views.SiteConfig) ViewFuncs {
	if v.Home == nil {
		v.Home = func(page views.ListingPage) templ.Component { return views.Home(cfg, page) }
	}
	if v.LoadMore == nil {
		v.LoadMore = views.LoadMoreResult
	}
	if v.LoadMoreError == nil {
		v.LoadMoreError = views.LoadMoreError
	}
	if v.Post == nil {
		v.Post = func(page views.PostPage) templ.Component { return views.Post(cfg, page) }
	}
	if v.Loading == nil {
		v.Loading = func(uid string) templ.Component { return views.Loading(cfg, uid) }
	}
	if v.NotFound == nil {
		v.NotFound = func() templ.Component { return views.NotFound(cfg) }
	}
	if v.ServerError == nil {
		v.ServerError = func() templ.Component { return views.ServerError(cfg) }
	}
	return v
}

func (a *App) siteConfig() views.SiteConfig {
	_, err := os.Stat(filepath.Join(a.staticDir, "htmx.min.js"))
	return views.SiteConfig{
		Name:        a.Config.Name,
		URL:         a.Config.URL,
		Description: a.Config.Description,
		Author:      a.Config.Author,
		HTMX:        err == nil,
	}
}

// Open initializes the CMS source, the page store, and the caches. It is
// safe to call more than once.
func (a *App) Open() error {
	if a.opened {
		return nil
	}
	a.Echo.Logger.SetLevel(logLevel(a.Config.LogLevel))

	if a.Source == nil {
		client, err := prismic.New(a.Config.PrismicEndpoint, a.Config.PrismicAccessToken,
			prismic.WithPageSize(a.Config.PageSize),
			prismic.WithHTTPClient(&http.Client{Timeout: a.Config.PrismicTimeout}),
			prismic.WithRefTTL(a.Config.PrismicRefTTL))
		if err != nil {
			return fmt.Errorf("spacetraveling: init prismic: %w", err)
		}
		a.Source = client
	}

	if a.Store == nil {
		store, err := NewStore(a.Config.DatabasePath)
		if err != nil {
			return fmt.Errorf("spacetraveling: init store: %w", err)
		}
		a.Store = store
	}

	a.Listing = NewListingCache(a.Source, a.Config.RevalidateInterval, a.Echo.Logger)
	a.Pages = NewGenerator(a.Store, a.Source, a.Config.RevalidateInterval, a.Echo.Logger)
	a.viewSessions = NewViewSessions(a.Config.ViewTTL, maxViews)
	a.moreLimiter = NewRequestLimiter(a.Config.LoadMorePerMinute, time.Minute)
	a.missLimiter = NewRequestLimiter(a.Config.MissesPerMinute, time.Minute)
	a.revalidateLimiter = NewRequestLimiter(5, 15*time.Minute)
	a.opened = true
	return nil
}

// Setup opens the App and registers middleware and routes. After Setup the
// App can serve requests through a.Echo.
func (a *App) Setup() error {
	if err := a.Open(); err != nil {
		return err
	}
	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start sets up the App and serves until the server fails.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run is Start with graceful shutdown once ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.Setup(); err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.Echo.Logger.Infof("starting server on %s", a.Config.Addr)
		serverErrors <- a.Echo.Start(a.Config.Addr)
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("spacetraveling: server error: %w", err)
		}
	case <-ctx.Done():
		a.Echo.Logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("spacetraveling: graceful shutdown: %w", err)
		}
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.GET("/favicon.svg", a.handleFavicon)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)

	e.GET("/", a.handleHome)
	e.POST("/posts/more/", a.handleLoadMore)
	e.GET("/post/", handlePostIndexRedirect)
	e.GET("/post/:uid/", a.handlePost)

	e.GET("/api/posts", a.handleAPIPosts)
	e.POST("/api/revalidate", a.handleRevalidate)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.viewSessions != nil {
		a.viewSessions.Close()
	}
	if a.moreLimiter != nil {
		a.moreLimiter.Close()
	}
	if a.missLimiter != nil {
		a.missLimiter.Close()
	}
	if a.revalidateLimiter != nil {
		a.revalidateLimiter.Close()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

func logLevel(s string) log.Lvl {
	switch s {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
