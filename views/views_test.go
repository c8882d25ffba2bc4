package views

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/content"
)

var testCfg = SiteConfig{Name: "spacetraveling", URL: "https://blog.example.com"}

func renderDoc(t *testing.T, c templ.Component) *goquery.Document {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	doc, err := goquery.NewDocumentFromReader(&buf)
	require.NoError(t, err)
	return doc
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2021, 3, 5, 19, 25, 28, 0, time.UTC)
	assert.Equal(t, "05 Mar 2021", FormatDate(&d))
	assert.Equal(t, "", FormatDate(nil))
}

func TestReadingTimeLabel(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "1 min"},
		{1, "1 min"},
		{4, "4 min"},
	}
	for _, tt := range tests {
		if got := ReadingTimeLabel(tt.minutes); got != tt.want {
			t.Errorf("ReadingTimeLabel(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestFragmentStripsScripts(t *testing.T) {
	got := string(Fragment(`<p>hello <strong>world</strong></p><script>alert(1)</script>`))
	assert.Equal(t, "<p>hello <strong>world</strong></p>", got)
}

func TestPostPath(t *testing.T) {
	assert.Equal(t, "/post/como-utilizar-hooks/", PostPath("como-utilizar-hooks"))
	assert.Equal(t, "https://blog.example.com/post/abc/", PostURL(testCfg, "abc"))
}

func TestHomeListsPostsAndLoadMore(t *testing.T) {
	d := time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC)
	doc := renderDoc(t, Home(testCfg, ListingPage{
		Meta: PageMeta{Title: "Posts | spacetraveling", OGType: "website"},
		Items: []content.PostSummary{
			{ID: "a", Title: "First", Subtitle: "one", Author: "Ana", PublishedAt: &d},
			{ID: "b", Title: "Second <b>", Subtitle: "two", Author: "Bia"},
		},
		LoadMore: LoadMore{ViewID: "view-1", CSRF: "tok", HasMore: true},
	}))

	assert.Equal(t, "Posts | spacetraveling", doc.Find("title").Text())
	items := doc.Find("#posts a.post-item")
	require.Equal(t, 2, items.Length())
	href, _ := items.First().Attr("href")
	assert.Equal(t, "/post/a/", href)
	assert.Equal(t, "15 Mar 2021", items.First().Find("time").Text())
	assert.Equal(t, "Second <b>", items.Eq(1).Find("strong").Text())

	form := doc.Find("#load-more form")
	require.Equal(t, 1, form.Length())
	view, _ := form.Find(`input[name="view"]`).Attr("value")
	assert.Equal(t, "view-1", view)
	csrf, _ := form.Find(`input[name="_csrf"]`).Attr("value")
	assert.Equal(t, "tok", csrf)
	assert.Equal(t, "Carregar mais posts", strings.TrimSpace(form.Find("button").Text()))
	assert.Equal(t, 0, doc.Find(`script[src="/public/htmx.min.js"]`).Length())
}

func TestLoadMoreFormWorksWithoutScripts(t *testing.T) {
	doc := renderDoc(t, Home(testCfg, ListingPage{
		LoadMore: LoadMore{ViewID: "v", HasMore: true, Error: "falhou"},
	}))

	form := doc.Find("#load-more form")
	action, _ := form.Attr("action")
	method, _ := form.Attr("method")
	assert.Equal(t, "/posts/more/", action)
	assert.Equal(t, "post", method)
	assert.Equal(t, "falhou", doc.Find("#load-more-error").Text())
}

func TestLayoutLoadsHTMXWhenServed(t *testing.T) {
	cfg := testCfg
	cfg.HTMX = true
	doc := renderDoc(t, Home(cfg, ListingPage{}))
	assert.Equal(t, 1, doc.Find(`script[src="/public/htmx.min.js"]`).Length())
}

func TestHomeHidesLoadMoreOnLastPage(t *testing.T) {
	doc := renderDoc(t, Home(testCfg, ListingPage{
		Items:    []content.PostSummary{{ID: "a", Title: "Only"}},
		LoadMore: LoadMore{ViewID: "v"},
	}))
	assert.Equal(t, 1, doc.Find("#load-more").Length())
	assert.Equal(t, 0, doc.Find("#load-more form").Length())
}

func TestLoadMoreResultSwapsControlOutOfBand(t *testing.T) {
	var buf bytes.Buffer
	err := LoadMoreResult([]content.PostSummary{{ID: "c", Title: "Third"}}, LoadMore{ViewID: "v"}).Render(context.Background(), &buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `href="/post/c/"`)
	assert.Contains(t, out, `id="load-more" hx-swap-oob="true"`)
	assert.NotContains(t, out, "<form")
}

func TestPostPage(t *testing.T) {
	doc := renderDoc(t, Post(testCfg, PostPage{
		Meta: PageMeta{Title: "Hooks | spacetraveling", OGType: "article"},
		Post: content.PostDetail{
			ID:        "hooks",
			Title:     "Hooks",
			Author:    "Joseph",
			BannerURL: "https://images.example.com/banner.png",
			Content: []content.RichTextBlock{
				{Heading: "Intro", Body: []content.BodyFragment{{Text: "<p>Body <em>text</em></p>"}, {Text: "<script>x()</script>plain"}}},
			},
		},
		Minutes: 0,
	}))

	assert.Equal(t, "Hooks", doc.Find("article h1").Text())
	assert.Equal(t, "1 min", doc.Find(".reading-time").Text())
	src, _ := doc.Find("img.banner").Attr("src")
	assert.Equal(t, "https://images.example.com/banner.png", src)
	assert.Equal(t, "Intro", doc.Find("section h3").Text())
	bodies := doc.Find(".post-content")
	require.Equal(t, 2, bodies.Length())
	assert.Equal(t, 1, bodies.First().Find("em").Length())
	assert.Equal(t, 0, doc.Find(".post-content script").Length())
	assert.Contains(t, doc.Find(`script[type="application/ld+json"]`).Text(), `"headline":"Hooks"`)
}

func TestLoadingRefreshesItself(t *testing.T) {
	doc := renderDoc(t, Loading(testCfg, "hooks"))
	refresh, ok := doc.Find(`meta[http-equiv="refresh"]`).Attr("content")
	require.True(t, ok)
	assert.Equal(t, "1", refresh)
	href, _ := doc.Find("main a").Attr("href")
	assert.Equal(t, "/post/hooks/", href)
	assert.Contains(t, doc.Find("main").Text(), "Carregando")
	assert.Equal(t, 0, doc.Find("[hx-get]").Length())
}

func TestOnlyLoadingRefreshes(t *testing.T) {
	doc := renderDoc(t, NotFound(testCfg))
	assert.Equal(t, 0, doc.Find(`meta[http-equiv="refresh"]`).Length())
}

func TestErrorPages(t *testing.T) {
	assert.Contains(t, renderDoc(t, NotFound(testCfg)).Find("h1").Text(), "não encontrada")
	assert.Contains(t, renderDoc(t, ServerError(testCfg)).Find("h1").Text(), "errado")
}
