// Package prismic reads blog posts from the Prismic REST API (v2).
package prismic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eringen/spacetraveling/content"
)

// ErrForeignLocator is returned when a next-page locator does not point at
// the configured API.
var ErrForeignLocator = errors.New("prismic: locator is not on the configured api host")

const (
	defaultPageSize = 20
	maxBodyBytes    = 10 << 20
	maxRetries      = 3
)

// Client is a content.Source backed by a Prismic repository.
type Client struct {
	endpoint *url.URL
	token    string
	pageSize int
	client   *http.Client
	limiter  *rate.Limiter
	backoffs []time.Duration
	refTTL   time.Duration

	mu         sync.Mutex
	ref        string
	refFetched time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithPageSize sets how many documents a listing page holds.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLimiter replaces the outbound rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBackoffs sets the waits between retries of a failed request.
func WithBackoffs(b ...time.Duration) Option {
	return func(c *Client) { c.backoffs = b }
}

// WithRefTTL sets how long the master ref is reused before it is looked up
// again.
func WithRefTTL(d time.Duration) Option {
	return func(c *Client) { c.refTTL = d }
}

// New returns a Client for the API entry point, e.g.
// https://my-repo.cdn.prismic.io/api/v2.
func New(endpoint, accessToken string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("prismic: parse endpoint: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("prismic: endpoint %q must be an absolute url", endpoint)
	}
	c := &Client{
		endpoint: u,
		token:    accessToken,
		pageSize: defaultPageSize,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		backoffs: []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
		refTTL:   time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// QueryByType returns the first page of documents of docType. fields are
// projected with Prismic's fetch parameter; unqualified names are prefixed
// with docType.
func (c *Client) QueryByType(ctx context.Context, docType string, fields []string) (content.PostPage, error) {
	return c.QueryPage(ctx, docType, fields, 1)
}

// QueryPage returns page n (1-based) of documents of docType, newest first.
func (c *Client) QueryPage(ctx context.Context, docType string, fields []string, n int) (content.PostPage, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf(`[[at(document.type,"%s")]]`, docType))
	q.Set("orderings", "[document.first_publication_date desc]")
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	if n > 1 {
		q.Set("page", strconv.Itoa(n))
	}
	if len(fields) > 0 {
		qualified := make([]string, len(fields))
		for i, f := range fields {
			if !strings.Contains(f, ".") {
				f = docType + "." + f
			}
			qualified[i] = f
		}
		q.Set("fetch", strings.Join(qualified, ","))
	}
	resp, err := c.search(ctx, q)
	if err != nil {
		return content.PostPage{}, err
	}
	return resp.page(), nil
}

// GetByUID returns the document of docType with the given uid, or
// content.ErrNotFound.
func (c *Client) GetByUID(ctx context.Context, docType, uid string) (content.PostDetail, error) {
	if uid == "" || strings.ContainsAny(uid, `"\`) {
		return content.PostDetail{}, content.ErrNotFound
	}
	q := url.Values{}
	q.Set("q", fmt.Sprintf(`[[at(my.%s.uid,"%s")]]`, docType, uid))
	q.Set("pageSize", "1")
	resp, err := c.search(ctx, q)
	if err != nil {
		return content.PostDetail{}, err
	}
	if len(resp.Results) == 0 {
		return content.PostDetail{}, content.ErrNotFound
	}
	return resp.Results[0].detail(), nil
}

// FetchPage follows a next_page locator returned by an earlier query.
// Relative locators resolve against the endpoint; absolute ones must share
// its scheme and host.
func (c *Client) FetchPage(ctx context.Context, locator string) (content.PostPage, error) {
	u, err := c.resolve(locator)
	if err != nil {
		return content.PostPage{}, err
	}
	var resp searchResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return content.PostPage{}, err
	}
	return resp.page(), nil
}

func (c *Client) resolve(locator string) (*url.URL, error) {
	ref, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("prismic: parse locator: %w", err)
	}
	u := c.endpoint.ResolveReference(ref)
	if u.Scheme != c.endpoint.Scheme || u.Host != c.endpoint.Host {
		return nil, ErrForeignLocator
	}
	if c.token != "" {
		q := u.Query()
		if q.Get("access_token") == "" {
			q.Set("access_token", c.token)
			u.RawQuery = q.Encode()
		}
	}
	return u, nil
}

func (c *Client) search(ctx context.Context, q url.Values) (*searchResponse, error) {
	u, err := c.searchURL(ctx, q)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) searchURL(ctx context.Context, q url.Values) (*url.URL, error) {
	ref, err := c.masterRef(ctx)
	if err != nil {
		return nil, err
	}
	q.Set("ref", ref)
	if c.token != "" {
		q.Set("access_token", c.token)
	}
	u := *c.endpoint
	u.Path = strings.TrimRight(u.Path, "/") + "/documents/search"
	u.RawQuery = q.Encode()
	return &u, nil
}

// masterRef returns the ref of the published content, cached for refTTL.
func (c *Client) masterRef(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.ref != "" && time.Since(c.refFetched) < c.refTTL {
		ref := c.ref
		c.mu.Unlock()
		return ref, nil
	}
	c.mu.Unlock()

	u := *c.endpoint
	if c.token != "" {
		q := u.Query()
		q.Set("access_token", c.token)
		u.RawQuery = q.Encode()
	}
	var api apiResponse
	if err := c.getJSON(ctx, &u, &api); err != nil {
		return "", err
	}
	ref := api.master()
	if ref == "" {
		return "", errors.New("prismic: api response has no master ref")
	}

	c.mu.Lock()
	c.ref = ref
	c.refFetched = time.Now()
	c.mu.Unlock()
	return ref, nil
}

// getJSON performs a GET and decodes the body into v. It retries on 429 and
// 5xx responses, honoring Retry-After when the server sends one.
func (c *Client) getJSON(ctx context.Context, u *url.URL, v any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("prismic: rate limiter wait failed: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return fmt.Errorf("prismic: create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("prismic: request cancelled: %w", ctx.Err())
			}
			return fmt.Errorf("prismic: request failed: %w", err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("prismic: read response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			if err := json.Unmarshal(body, v); err != nil {
				return fmt.Errorf("prismic: decode response: %w", err)
			}
			return nil
		}

		lastErr = fmt.Errorf("prismic: unexpected status %d: %s", resp.StatusCode, snippet(body))
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return lastErr
		}
		if attempt == maxRetries {
			break
		}
		wait := c.backoff(attempt)
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
				wait = time.Duration(secs) * time.Second
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("prismic: request cancelled during retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("prismic: giving up after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	if len(c.backoffs) == 0 {
		return 0
	}
	if attempt >= len(c.backoffs) {
		return c.backoffs[len(c.backoffs)-1]
	}
	return c.backoffs[attempt]
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
