package feed

import (
	"context"
	"sync"
)

// Hub shares one Feed among any number of holders. The feed is created and
// started on the first Acquire and closed when the last holder releases it.
type Hub struct {
	newFeed func() *Feed

	mu   sync.Mutex
	feed *Feed
	refs int
}

// NewHub returns a Hub that builds its feed with newFeed.
func NewHub(newFeed func() *Feed) *Hub {
	return &Hub{newFeed: newFeed}
}

// Acquire returns the shared feed and a release func. Release is
// idempotent; the last release closes the feed synchronously.
func (h *Hub) Acquire() (*Feed, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.feed == nil {
		h.feed = h.newFeed()
		h.feed.Start(context.Background())
	}
	h.refs++
	f := h.feed

	var once sync.Once
	return f, func() {
		once.Do(func() { h.release(f) })
	}
}

func (h *Hub) release(f *Feed) {
	h.mu.Lock()
	if h.feed != f {
		h.mu.Unlock()
		return
	}
	h.refs--
	if h.refs > 0 {
		h.mu.Unlock()
		return
	}
	h.feed = nil
	h.mu.Unlock()

	f.Close()
}

// Refs returns the number of current holders.
func (h *Hub) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}
