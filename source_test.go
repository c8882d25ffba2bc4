package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eringen/spacetraveling/content"
)

// fakeSource serves a fixed list of posts in pages of pageSize. Locators
// look like "page=N".
type fakeSource struct {
	mu       sync.Mutex
	posts    []content.PostSummary
	details  map[string]content.PostDetail
	pageSize int
	fetchErr error
	getErr   map[string]error

	queries atomic.Int32
	fetches atomic.Int32
	gets    atomic.Int32
}

func newFakeSource(n, pageSize int) *fakeSource {
	f := &fakeSource{
		details:  make(map[string]content.PostDetail),
		pageSize: pageSize,
		getErr:   make(map[string]error),
	}
	base := time.Date(2021, 3, 25, 19, 25, 28, 0, time.UTC)
	for i := 1; i <= n; i++ {
		uid := fmt.Sprintf("post-%d", i)
		published := base.Add(-time.Duration(i) * 24 * time.Hour)
		f.posts = append(f.posts, content.PostSummary{
			ID:          uid,
			PublishedAt: &published,
			Title:       fmt.Sprintf("Post %d", i),
			Subtitle:    fmt.Sprintf("Subtitle %d", i),
			Author:      "Joseph Oliveira",
		})
		f.details[uid] = content.PostDetail{
			ID:          uid,
			PublishedAt: &published,
			Title:       fmt.Sprintf("Post %d", i),
			Author:      "Joseph Oliveira",
			BannerURL:   "https://images.example.com/" + uid + ".png",
			Content: []content.RichTextBlock{
				{Heading: "Intro", Body: []content.BodyFragment{{Text: "<p>" + strings.Repeat("palavra ", 250) + "</p>"}}},
			},
		}
	}
	return f
}

func (f *fakeSource) page(n int) content.PostPage {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := (n - 1) * f.pageSize
	if start >= len(f.posts) {
		return content.PostPage{Items: []content.PostSummary{}}
	}
	end := start + f.pageSize
	page := content.PostPage{}
	if end < len(f.posts) {
		page.NextPage = "page=" + strconv.Itoa(n+1)
	} else {
		end = len(f.posts)
	}
	page.Items = append([]content.PostSummary(nil), f.posts[start:end]...)
	return page
}

func (f *fakeSource) setFetchErr(err error) {
	f.mu.Lock()
	f.fetchErr = err
	f.mu.Unlock()
}

func (f *fakeSource) setGetErr(uid string, err error) {
	f.mu.Lock()
	f.getErr[uid] = err
	f.mu.Unlock()
}

func (f *fakeSource) setTitle(uid, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.details[uid]
	d.Title = title
	f.details[uid] = d
	for i := range f.posts {
		if f.posts[i].ID == uid {
			f.posts[i].Title = title
		}
	}
}

func (f *fakeSource) QueryByType(ctx context.Context, docType string, fields []string) (content.PostPage, error) {
	f.queries.Add(1)
	return f.QueryPage(ctx, docType, fields, 1)
}

func (f *fakeSource) QueryPage(ctx context.Context, docType string, fields []string, n int) (content.PostPage, error) {
	if docType != content.PostType {
		return content.PostPage{}, fmt.Errorf("unexpected type %q", docType)
	}
	return f.page(n), nil
}

func (f *fakeSource) FetchPage(ctx context.Context, locator string) (content.PostPage, error) {
	f.fetches.Add(1)
	f.mu.Lock()
	err := f.fetchErr
	f.mu.Unlock()
	if err != nil {
		return content.PostPage{}, err
	}
	n, convErr := strconv.Atoi(strings.TrimPrefix(locator, "page="))
	if convErr != nil {
		return content.PostPage{}, fmt.Errorf("bad locator %q", locator)
	}
	return f.page(n), nil
}

func (f *fakeSource) GetByUID(ctx context.Context, docType, uid string) (content.PostDetail, error) {
	f.gets.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[uid]; err != nil {
		return content.PostDetail{}, err
	}
	d, ok := f.details[uid]
	if !ok {
		return content.PostDetail{}, content.ErrNotFound
	}
	return d, nil
}

var errCMSDown = errors.New("cms unavailable")

func newTestApp(t *testing.T, src content.Source, opts ...Option) *App {
	t.Helper()
	cfg := SiteConfig{
		Name:               "spacetraveling",
		URL:                "https://blog.example.com",
		Description:        "Posts about space",
		DatabasePath:       t.TempDir() + "/pages.db",
		PrismicEndpoint:    "https://spacetraveling.cdn.prismic.io/api/v2",
		RevalidateInterval: time.Hour,
		LogLevel:           "off",
		RevalidateSecret:   "s3cret",
	}
	a := New(cfg, append([]Option{WithSource(src)}, opts...)...)
	if err := a.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// failingSource fails every call with errCMSDown.
type failingSource struct{}

func (failingSource) QueryByType(context.Context, string, []string) (content.PostPage, error) {
	return content.PostPage{}, errCMSDown
}

func (failingSource) GetByUID(context.Context, string, string) (content.PostDetail, error) {
	return content.PostDetail{}, errCMSDown
}

func (failingSource) FetchPage(context.Context, string) (content.PostPage, error) {
	return content.PostPage{}, errCMSDown
}
