// Package cache provides a small bounded TTL cache used by the signal engine
// to avoid recomputing windowed statistics on every poll cycle.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key      string
	value    interface{}
	inserted time.Time
}

// TTL is a capacity-bounded cache with a single time-to-live applied to every
// entry. Eviction is oldest-insertion-first once capacity is exceeded.
type TTL struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

// NewTTL builds a cache holding at most capacity entries, each valid for ttl.
func NewTTL(ttl time.Duration, capacity int) *TTL {
	if capacity <= 0 {
		capacity = 128
	}
	return &TTL{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached value for key if it exists and has not expired.
func (c *TTL) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.now().Sub(e.inserted) >= c.ttl {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, refreshing the insertion time if the key is
// already present.
func (c *TTL) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.inserted = c.now()
		c.order.MoveToBack(el)
		return
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
	c.items[key] = c.order.PushBack(&entry{key: key, value: value, inserted: c.now()})
}

// Len reports the number of entries currently held, expired or not.
func (c *TTL) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
