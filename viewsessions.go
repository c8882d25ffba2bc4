package spacetraveling

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eringen/spacetraveling/paginator"
)

// ViewSessions tracks the paginator behind each rendered listing page. The
// page carries its view id in the load-more form; idle views expire after
// ttl.
type ViewSessions struct {
	mu    sync.Mutex
	views map[string]*viewEntry
	ttl   time.Duration
	max   int
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

type viewEntry struct {
	pager *paginator.Paginator
	seen  time.Time
}

// NewViewSessions creates a ViewSessions holding at most max views.
func NewViewSessions(ttl time.Duration, max int) *ViewSessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	v := &ViewSessions{
		views: make(map[string]*viewEntry),
		ttl:   ttl,
		max:   max,
		now:   time.Now,
		done:  make(chan struct{}),
	}
	go v.cleanup()
	return v
}

func (v *ViewSessions) cleanup() {
	ticker := time.NewTicker(v.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			v.sweep()
		case <-v.done:
			return
		}
	}
}

func (v *ViewSessions) sweep() {
	cutoff := v.now().Add(-v.ttl)
	v.mu.Lock()
	for id, e := range v.views {
		if e.seen.Before(cutoff) {
			delete(v.views, id)
		}
	}
	v.mu.Unlock()
}

// Open registers p and returns its new view id. When full, the least
// recently used view is dropped.
func (v *ViewSessions) Open(p *paginator.Paginator) string {
	id := uuid.NewString()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.max > 0 && len(v.views) >= v.max {
		var oldest string
		var oldestSeen time.Time
		for k, e := range v.views {
			if oldest == "" || e.seen.Before(oldestSeen) {
				oldest, oldestSeen = k, e.seen
			}
		}
		delete(v.views, oldest)
	}
	v.views[id] = &viewEntry{pager: p, seen: v.now()}
	return id
}

// Get returns the paginator for id and marks the view as used.
func (v *ViewSessions) Get(id string) (*paginator.Paginator, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.views[id]
	if !ok {
		return nil, false
	}
	if v.now().Sub(e.seen) >= v.ttl {
		delete(v.views, id)
		return nil, false
	}
	e.seen = v.now()
	return e.pager, true
}

// Len returns the number of tracked views.
func (v *ViewSessions) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.views)
}

// Close stops the cleanup goroutine.
func (v *ViewSessions) Close() {
	v.once.Do(func() { close(v.done) })
}
