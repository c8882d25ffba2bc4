// Package paginator accumulates listing pages for a single page view.
package paginator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eringen/spacetraveling/content"
)

var (
	// ErrNoMorePages is returned by LoadMore when the state has no locator.
	ErrNoMorePages = errors.New("paginator: no more pages")
	// ErrLoadInFlight is returned when another load has not resolved yet.
	ErrLoadInFlight = errors.New("paginator: load already in flight")
	// ErrStalePage is returned when a response no longer matches the
	// current locator and was discarded.
	ErrStalePage = errors.New("paginator: stale page discarded")
)

// State is the accumulated listing. Items are append-only and IDs are unique.
type State struct {
	NextPage string
	Items    []content.PostSummary
}

// HasMore reports whether a "load more" control should be shown.
func (s State) HasMore() bool {
	return s.NextPage != ""
}

// Initialize builds the starting state from the first page.
func Initialize(page content.PostPage) State {
	return AppendPage(State{}, page)
}

// AppendPage returns state with page's items appended after the existing
// ones and NextPage replaced by page's locator. Items whose ID is already
// present are skipped. state is not modified.
func AppendPage(state State, page content.PostPage) State {
	seen := make(map[string]struct{}, len(state.Items)+len(page.Items))
	items := make([]content.PostSummary, 0, len(state.Items)+len(page.Items))
	for _, p := range state.Items {
		seen[p.ID] = struct{}{}
		items = append(items, p)
	}
	for _, p := range page.Items {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		items = append(items, p)
	}
	return State{NextPage: page.NextPage, Items: items}
}

// Fetcher retrieves the page a locator points at.
type Fetcher interface {
	FetchPage(ctx context.Context, locator string) (content.PostPage, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, locator string) (content.PostPage, error)

// FetchPage implements Fetcher.
func (f FetcherFunc) FetchPage(ctx context.Context, locator string) (content.PostPage, error) {
	return f(ctx, locator)
}

// Paginator owns the State of one page view and serializes "load more".
type Paginator struct {
	mu       sync.Mutex
	state    State
	fetcher  Fetcher
	inFlight bool
}

// New returns a Paginator seeded with the first page.
func New(first content.PostPage, f Fetcher) *Paginator {
	return &Paginator{state: Initialize(first), fetcher: f}
}

// Snapshot returns a copy of the current state.
func (p *Paginator) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyState(p.state)
}

// Reset replaces the state with a fresh first page. A load in flight when
// Reset runs has its response discarded.
func (p *Paginator) Reset(first content.PostPage) {
	p.mu.Lock()
	p.state = Initialize(first)
	p.mu.Unlock()
}

// LoadMore fetches the next page and merges it. It returns the newly added
// items and the state after the merge. On error the state is unchanged.
//
// Only one load runs at a time; a concurrent call gets ErrLoadInFlight. A
// response is merged only if the state still points at the locator it was
// requested with.
func (p *Paginator) LoadMore(ctx context.Context) ([]content.PostSummary, State, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return nil, State{}, ErrLoadInFlight
	}
	locator := p.state.NextPage
	if locator == "" {
		st := copyState(p.state)
		p.mu.Unlock()
		return nil, st, ErrNoMorePages
	}
	p.inFlight = true
	p.mu.Unlock()

	page, err := p.fetcher.FetchPage(ctx, locator)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false
	if err != nil {
		return nil, copyState(p.state), fmt.Errorf("paginator: fetch %s: %w", locator, err)
	}
	if p.state.NextPage != locator {
		return nil, copyState(p.state), ErrStalePage
	}
	before := len(p.state.Items)
	p.state = AppendPage(p.state, page)
	added := append([]content.PostSummary(nil), p.state.Items[before:]...)
	return added, copyState(p.state), nil
}

func copyState(s State) State {
	return State{
		NextPage: s.NextPage,
		Items:    append([]content.PostSummary(nil), s.Items...),
	}
}
