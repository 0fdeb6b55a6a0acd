package notify

import (
	"context"
	"sync"
)

const defaultFeedSize = 50

// Feed keeps the most recent notices in memory so the UI can poll them.
type Feed struct {
	mu    sync.Mutex
	ring  []Notice
	next  int
	count int
}

// NewFeed returns a feed holding up to size notices.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = defaultFeedSize
	}
	return &Feed{ring: make([]Notice, size)}
}

func (f *Feed) Channel() Channel { return ChannelFeed }

func (f *Feed) Notify(_ context.Context, notice Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ring[f.next] = notice
	f.next = (f.next + 1) % len(f.ring)
	if f.count < len(f.ring) {
		f.count++
	}
	return nil
}

// Recent returns up to limit notices, newest first. A non-positive limit
// returns everything held.
func (f *Feed) Recent(limit int) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > f.count {
		limit = f.count
	}
	out := make([]Notice, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (f.next - i + len(f.ring)) % len(f.ring)
		out = append(out, f.ring[idx])
	}
	return out
}
