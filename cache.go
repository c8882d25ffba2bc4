package spacetraveling

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"github.com/eringen/spacetraveling/content"
)

// refreshTimeout bounds a background listing refresh.
const refreshTimeout = 30 * time.Second

// ListingCache holds the first listing page with a TTL. Once the TTL passes
// the stale page keeps being served while one refresh runs in the
// background. Refreshes run detached from the requests that trigger them.
type ListingCache struct {
	mu      sync.RWMutex
	page    content.PostPage
	fetched time.Time
	loaded  bool
	gen     uint64 // bumped by Invalidate; older refreshes are discarded
	ttl     time.Duration

	source content.Source
	group  singleflight.Group
	logger echo.Logger
	now    func() time.Time
}

// NewListingCache creates a ListingCache backed by src.
func NewListingCache(src content.Source, ttl time.Duration, logger echo.Logger) *ListingCache {
	return &ListingCache{source: src, ttl: ttl, logger: logger, now: time.Now}
}

// FirstPage returns the cached first listing page. Until a page is loaded
// callers wait on a shared fetch, each giving up when its own ctx is done;
// after that they never wait.
func (c *ListingCache) FirstPage(ctx context.Context) (content.PostPage, error) {
	c.mu.RLock()
	page, loaded, fetched, gen := c.page, c.loaded, c.fetched, c.gen
	c.mu.RUnlock()

	if loaded {
		if c.now().Sub(fetched) >= c.ttl {
			c.start(gen)
		}
		return page, nil
	}

	select {
	case res := <-c.start(gen):
		if res.Err != nil {
			return content.PostPage{}, res.Err
		}
		return res.Val.(content.PostPage), nil
	case <-ctx.Done():
		return content.PostPage{}, ctx.Err()
	}
}

// start refreshes the page in the background. Calls made for the same
// generation share one fetch.
func (c *ListingCache) start(gen uint64) <-chan singleflight.Result {
	return c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		p, err := c.refresh(ctx, gen)
		if err != nil {
			c.logger.Warnf("listing refresh failed: %v", err)
		}
		return p, err
	})
}

func (c *ListingCache) refresh(ctx context.Context, gen uint64) (content.PostPage, error) {
	page, err := c.source.QueryByType(ctx, content.PostType, listingFields)
	if err != nil {
		return content.PostPage{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return page, nil
	}
	c.page = page
	c.fetched = c.now()
	c.loaded = true
	return page, nil
}

// Invalidate forces the next read to fetch a fresh page. A refresh already
// running is not joined and its result is dropped.
func (c *ListingCache) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.loaded = false
	c.page = content.PostPage{}
	c.mu.Unlock()
}
