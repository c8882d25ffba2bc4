package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/eringen/spacetraveling/content"
)

// PageStatus tells a handler what to render for a post uid.
type PageStatus int

const (
	// PageReady means a generated post is available.
	PageReady PageStatus = iota
	// PagePending means generation is running; render the loading view.
	PagePending
	// PageMissing means the CMS has no post for the uid.
	PageMissing
)

const (
	// generateTimeout bounds one background page generation.
	generateTimeout = time.Minute
	// generateWait is how long Lookup waits on a new generation before
	// reporting PagePending.
	generateWait = 2 * time.Second
	// maxMissing caps the number of not-found markers kept in memory.
	maxMissing = 1024
)

// Generator produces post pages on first request and keeps them in the
// Store. Pages older than the revalidate interval are still served while a
// fresh copy is generated. Uids the CMS does not know are remembered in
// memory for one revalidate interval and never reach the Store.
type Generator struct {
	store      *Store
	source     content.Source
	revalidate time.Duration
	wait       time.Duration
	logger     echo.Logger
	group      singleflight.Group
	now        func() time.Time

	mu       sync.Mutex
	failures map[string]error
	missing  map[string]time.Time
	inflight map[string]bool
}

// NewGenerator creates a Generator writing to s and reading from src.
func NewGenerator(s *Store, src content.Source, revalidate time.Duration, logger echo.Logger) *Generator {
	return &Generator{
		store:      s,
		source:     src,
		revalidate: revalidate,
		wait:       generateWait,
		logger:     logger,
		now:        time.Now,
		failures:   make(map[string]error),
		missing:    make(map[string]time.Time),
		inflight:   make(map[string]bool),
	}
}

// Lookup returns the page for uid if one is ready. A uid with no stored page
// starts a generation and waits briefly for it; if it is still running
// Lookup reports PagePending. A failed generation is reported once as an
// error; the next Lookup retries.
func (g *Generator) Lookup(ctx context.Context, uid string) (content.PostDetail, PageStatus, error) {
	if g.isMissing(uid) {
		return content.PostDetail{}, PageMissing, nil
	}
	page, err := g.store.GetPage(uid)
	switch {
	case errors.Is(err, ErrNotGenerated):
		if ferr := g.takeFailure(uid); ferr != nil {
			return content.PostDetail{}, PagePending, ferr
		}
		return g.await(ctx, uid, g.start(uid, true))
	case err != nil:
		return content.PostDetail{}, PagePending, err
	}

	if g.now().Sub(page.GeneratedAt) >= g.revalidate {
		g.start(uid, false)
	}
	return page.Post, PageReady, nil
}

// Known reports whether uid can be answered without a new CMS fetch: a page
// is stored for it, it is marked as missing, or its generation is running.
func (g *Generator) Known(uid string) bool {
	if g.isMissing(uid) {
		return true
	}
	g.mu.Lock()
	running := g.inflight[uid]
	g.mu.Unlock()
	if running {
		return true
	}
	_, err := g.store.GetPage(uid)
	return err == nil
}

func (g *Generator) await(ctx context.Context, uid string, ch <-chan singleflight.Result) (content.PostDetail, PageStatus, error) {
	if g.wait <= 0 {
		return content.PostDetail{}, PagePending, nil
	}
	timer := time.NewTimer(g.wait)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.Err != nil {
			g.takeFailure(uid)
			return content.PostDetail{}, PagePending, res.Err
		}
		page := res.Val.(GeneratedPage)
		if page.NotFound {
			return content.PostDetail{}, PageMissing, nil
		}
		return page.Post, PageReady, nil
	case <-timer.C:
		return content.PostDetail{}, PagePending, nil
	case <-ctx.Done():
		return content.PostDetail{}, PagePending, ctx.Err()
	}
}

// start runs Generate for uid in the background. Concurrent calls for the
// same uid share one generation. A failure is kept for the next Lookup only
// when recordFailure is set; a stale page that fails to regenerate keeps
// being served.
func (g *Generator) start(uid string, recordFailure bool) <-chan singleflight.Result {
	return g.group.DoChan(uid, func() (any, error) {
		g.mu.Lock()
		g.inflight[uid] = true
		g.mu.Unlock()
		defer func() {
			g.mu.Lock()
			delete(g.inflight, uid)
			g.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
		defer cancel()
		page, err := g.Generate(ctx, uid)
		if err != nil {
			g.logger.Errorf("generate page %s: %v", uid, err)
			if recordFailure {
				g.mu.Lock()
				g.failures[uid] = err
				g.mu.Unlock()
			}
		}
		return page, err
	})
}

func (g *Generator) takeFailure(uid string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.failures[uid]
	delete(g.failures, uid)
	return err
}

func (g *Generator) isMissing(uid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.missing[uid]
	if !ok {
		return false
	}
	if g.now().Sub(at) >= g.revalidate {
		delete(g.missing, uid)
		return false
	}
	return true
}

func (g *Generator) markMissing(uid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if len(g.missing) >= maxMissing {
		var oldest string
		var oldestAt time.Time
		for k, at := range g.missing {
			if now.Sub(at) >= g.revalidate {
				delete(g.missing, k)
				continue
			}
			if oldest == "" || at.Before(oldestAt) {
				oldest, oldestAt = k, at
			}
		}
		if len(g.missing) >= maxMissing {
			delete(g.missing, oldest)
		}
	}
	g.missing[uid] = now
}

// ForgetMissing drops every not-found marker so the next request for any
// uid asks the CMS again.
func (g *Generator) ForgetMissing() {
	g.mu.Lock()
	clear(g.missing)
	g.mu.Unlock()
}

// Generate fetches uid from the CMS and stores the result. A post the CMS
// does not have is marked missing and any stored copy is removed.
func (g *Generator) Generate(ctx context.Context, uid string) (GeneratedPage, error) {
	post, err := g.source.GetByUID(ctx, content.PostType, uid)
	page := GeneratedPage{UID: uid, GeneratedAt: g.now()}
	switch {
	case errors.Is(err, content.ErrNotFound):
		page.NotFound = true
		g.markMissing(uid)
		if err := g.store.DeletePage(uid); err != nil {
			return GeneratedPage{}, fmt.Errorf("spacetraveling: drop page %s: %w", uid, err)
		}
	case err != nil:
		return GeneratedPage{}, fmt.Errorf("spacetraveling: fetch post %s: %w", uid, err)
	default:
		page.Post = post
		if err := g.store.SavePage(page); err != nil {
			return GeneratedPage{}, fmt.Errorf("spacetraveling: save page %s: %w", uid, err)
		}
	}
	g.mu.Lock()
	delete(g.failures, uid)
	g.mu.Unlock()
	return page, nil
}

// GenerateAll walks every listing page and generates each post, running at
// most concurrency generations at once. It returns the number of pages
// stored.
func (g *Generator) GenerateAll(ctx context.Context, concurrency int) (int, error) {
	uids, err := g.listUIDs(ctx)
	if err != nil {
		return 0, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for _, uid := range uids {
		eg.Go(func() error {
			_, err := g.Generate(ctx, uid)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return len(uids), nil
}

func (g *Generator) listUIDs(ctx context.Context) ([]string, error) {
	page, err := g.source.QueryByType(ctx, content.PostType, listingFields)
	if err != nil {
		return nil, fmt.Errorf("spacetraveling: list posts: %w", err)
	}
	seen := make(map[string]bool)
	var uids []string
	for {
		for _, p := range page.Items {
			if !seen[p.ID] {
				seen[p.ID] = true
				uids = append(uids, p.ID)
			}
		}
		if !page.HasMore() {
			return uids, nil
		}
		next := page.NextPage
		page, err = g.source.FetchPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("spacetraveling: list posts %s: %w", next, err)
		}
	}
}
