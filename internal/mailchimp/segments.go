package mailchimp

import (
	"sync"
)

// SegmentCache memoizes segment names per (list, segment) pair.
// Entries live as long as the owning client.
type SegmentCache struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewSegmentCache() *SegmentCache {
	return &SegmentCache{names: make(map[string]string)}
}

func segmentKey(listID, segmentID string) string {
	return listID + ":" + segmentID
}

func (c *SegmentCache) Get(listID, segmentID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[segmentKey(listID, segmentID)]
	return name, ok
}

func (c *SegmentCache) Set(listID, segmentID, name string) {
	c.mu.Lock()
	c.names[segmentKey(listID, segmentID)] = name
	c.mu.Unlock()
}

func (c *SegmentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}
