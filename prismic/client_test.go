package prismic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/eringen/spacetraveling/content"
)

const apiBody = `{"refs":[{"id":"preview","ref":"preview-ref","isMasterRef":false},{"id":"master","ref":"master-ref","isMasterRef":true}]}`

const listBody = `{
  "page": 1,
  "next_page": "%s/api/v2/documents/search?ref=master-ref&page=2",
  "results": [
    {"id":"D1","uid":"como-utilizar-hooks","type":"posts","first_publication_date":"2021-03-15T19:25:28+0000",
     "data":{"title":"Como utilizar Hooks","subtitle":"Pensando em sincronização","author":"Joseph Oliveira"}},
    {"id":"D2","uid":null,"type":"posts","first_publication_date":null,
     "data":{"title":[{"type":"heading1","text":"Criando um app"},{"type":"paragraph","text":"CRA"}],"subtitle":null}}
  ]
}`

const lastPageBody = `{
  "page": 2,
  "next_page": null,
  "results": [
    {"id":"D3","uid":"third","type":"posts","first_publication_date":"2021-04-01T10:00:00+0000","data":{"title":"Third","subtitle":"s","author":"a"}}
  ]
}`

const detailBody = `{
  "next_page": null,
  "results": [
    {"id":"D1","uid":"como-utilizar-hooks","type":"posts","first_publication_date":"2021-03-15T19:25:28+0000",
     "data":{
       "title":"Como utilizar Hooks",
       "author":"Joseph Oliveira",
       "banner":{"url":"https://images.prismic.io/banner.png","alt":null},
       "content":[
         {"heading":"Proin et varius","body":[{"type":"paragraph","text":"<p>Lorem ipsum dolor</p>","spans":[]},{"text":"sit amet"}]},
         {"heading":[{"text":"Cras laoreet"}],"body":null},
         {"body":["bare string", 42]}
       ]}}
  ]
}`

type fakeAPI struct {
	*httptest.Server
	apiHits    atomic.Int32
	searchHits atomic.Int32
	lastQuery  atomic.Value
}

func newFakeAPI(t *testing.T, search func(w http.ResponseWriter, r *http.Request, base string)) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2":
			f.apiHits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, apiBody)
		case "/api/v2/documents/search":
			f.searchHits.Add(1)
			f.lastQuery.Store(r.URL.Query())
			search(w, r, f.URL)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func newTestClient(t *testing.T, endpoint string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLimiter(rate.NewLimiter(rate.Inf, 1)), WithBackoffs(time.Millisecond)}, opts...)
	c, err := New(endpoint+"/api/v2", "", opts...)
	require.NoError(t, err)
	return c
}

func TestNewRejectsRelativeEndpoint(t *testing.T) {
	_, err := New("/api/v2", "")
	assert.Error(t, err)
	_, err = New("https://repo.cdn.prismic.io/api/v2/", "token")
	assert.NoError(t, err)
}

func TestQueryByType(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		fmt.Fprintf(w, listBody, base)
	})
	c := newTestClient(t, api.URL, WithPageSize(2))

	page, err := c.QueryByType(context.Background(), content.PostType, []string{"title", "subtitle", "posts.author"})
	require.NoError(t, err)

	q := api.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"master-ref"}, q["ref"])
	assert.Equal(t, []string{`[[at(document.type,"posts")]]`}, q["q"])
	assert.Equal(t, []string{"posts.title,posts.subtitle,posts.author"}, q["fetch"])
	assert.Equal(t, []string{"2"}, q["pageSize"])

	assert.Equal(t, api.URL+"/api/v2/documents/search?ref=master-ref&page=2", page.NextPage)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "como-utilizar-hooks", first.ID)
	assert.Equal(t, "Como utilizar Hooks", first.Title)
	assert.Equal(t, "Pensando em sincronização", first.Subtitle)
	assert.Equal(t, "Joseph Oliveira", first.Author)
	require.NotNil(t, first.PublishedAt)
	assert.True(t, first.PublishedAt.Equal(time.Date(2021, 3, 15, 19, 25, 28, 0, time.UTC)))

	second := page.Items[1]
	assert.Equal(t, "D2", second.ID, "falls back to document id")
	assert.Nil(t, second.PublishedAt)
	assert.Equal(t, "Criando um app CRA", second.Title)
	assert.Equal(t, "", second.Subtitle)
	assert.Equal(t, "", second.Author)
}

func TestMasterRefIsCached(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		fmt.Fprint(w, lastPageBody)
	})
	c := newTestClient(t, api.URL)

	for i := 0; i < 3; i++ {
		_, err := c.QueryByType(context.Background(), content.PostType, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), api.apiHits.Load())
	assert.Equal(t, int32(3), api.searchHits.Load())
}

func TestMasterRefExpires(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		fmt.Fprint(w, lastPageBody)
	})
	c := newTestClient(t, api.URL, WithRefTTL(time.Nanosecond))

	for i := 0; i < 2; i++ {
		_, err := c.QueryByType(context.Background(), content.PostType, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), api.apiHits.Load())
}

func TestHTTPClientTimeout(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	c := newTestClient(t, api.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))

	start := time.Now()
	_, err := c.QueryByType(context.Background(), content.PostType, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchPage(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, lastPageBody)
			return
		}
		fmt.Fprintf(w, listBody, base)
	})
	c := newTestClient(t, api.URL)

	first, err := c.QueryByType(context.Background(), content.PostType, nil)
	require.NoError(t, err)
	require.True(t, first.HasMore())

	next, err := c.FetchPage(context.Background(), first.NextPage)
	require.NoError(t, err)
	assert.False(t, next.HasMore())
	require.Len(t, next.Items, 1)
	assert.Equal(t, "third", next.Items[0].ID)
}

func TestFetchPageRejectsForeignHost(t *testing.T) {
	c := newTestClient(t, "https://repo.cdn.prismic.io")
	_, err := c.FetchPage(context.Background(), "https://evil.example.com/api/v2/documents/search?page=2")
	assert.ErrorIs(t, err, ErrForeignLocator)
	_, err = c.FetchPage(context.Background(), "http://repo.cdn.prismic.io/api/v2/documents/search?page=2")
	assert.ErrorIs(t, err, ErrForeignLocator)
}

func TestResolveAddsAccessToken(t *testing.T) {
	c, err := New("https://repo.cdn.prismic.io/api/v2", "secret")
	require.NoError(t, err)
	u, err := c.resolve("/api/v2/documents/search?page=2")
	require.NoError(t, err)
	assert.Equal(t, "secret", u.Query().Get("access_token"))
	assert.Equal(t, "2", u.Query().Get("page"))
}

func TestGetByUID(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		if strings.Contains(r.URL.Query().Get("q"), `"como-utilizar-hooks"`) {
			fmt.Fprint(w, detailBody)
			return
		}
		fmt.Fprint(w, `{"next_page":null,"results":[]}`)
	})
	c := newTestClient(t, api.URL)

	post, err := c.GetByUID(context.Background(), content.PostType, "como-utilizar-hooks")
	require.NoError(t, err)
	q := api.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{`[[at(my.posts.uid,"como-utilizar-hooks")]]`}, q["q"])

	assert.Equal(t, "como-utilizar-hooks", post.ID)
	assert.Equal(t, "Como utilizar Hooks", post.Title)
	assert.Equal(t, "https://images.prismic.io/banner.png", post.BannerURL)
	require.Len(t, post.Content, 3)
	assert.Equal(t, "Proin et varius", post.Content[0].Heading)
	assert.Equal(t, []content.BodyFragment{{Text: "<p>Lorem ipsum dolor</p>"}, {Text: "sit amet"}}, post.Content[0].Body)
	assert.Equal(t, "Cras laoreet", post.Content[1].Heading)
	assert.Empty(t, post.Content[1].Body)
	assert.Equal(t, []content.BodyFragment{{Text: "bare string"}, {Text: ""}}, post.Content[2].Body)

	_, err = c.GetByUID(context.Background(), content.PostType, "missing")
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestGetByUIDRejectsQuoteInjection(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		t.Errorf("unexpected search request: %s", r.URL.RawQuery)
	})
	c := newTestClient(t, api.URL)
	_, err := c.GetByUID(context.Background(), content.PostType, `x")]] [[any(`)
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, lastPageBody)
	})
	c := newTestClient(t, api.URL)

	page, err := c.QueryByType(context.Background(), content.PostType, nil)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesHonorRetryAfter(t *testing.T) {
	var calls atomic.Int32
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, lastPageBody)
	})
	c := newTestClient(t, api.URL, WithBackoffs(time.Hour))

	_, err := c.QueryByType(context.Background(), content.PostType, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGivesUpAfterRetries(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	c := newTestClient(t, api.URL)

	_, err := c.QueryByType(context.Background(), content.PostType, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "giving up")
	assert.Equal(t, int32(maxRetries+1), api.searchHits.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		http.Error(w, `{"message":"bad query"}`, http.StatusBadRequest)
	})
	c := newTestClient(t, api.URL)

	_, err := c.QueryByType(context.Background(), content.PostType, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), api.searchHits.Load())
}

func TestCancelledContext(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request, base string) {
		fmt.Fprint(w, lastPageBody)
	})
	c := newTestClient(t, api.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.QueryByType(ctx, content.PostType, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
