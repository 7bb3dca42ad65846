package common

import (
	"container/list"
	"sync"
)

// LRU is a fixed-size cache with least-recently-used eviction. Safe for
// concurrent use.
type LRU struct {
	size      int
	evictList *list.List
	items     map[interface{}]*list.Element
	onEvicted func(key interface{}, value interface{})
	lock      sync.Mutex
}

type lruEntry struct {
	key   interface{}
	value interface{}
}

// NewLRU constructs an LRU of the given size. onEvicted, when not nil, is
// called for each evicted item.
func NewLRU(size int, onEvicted func(key interface{}, value interface{})) *LRU {
	return &LRU{
		size:      size,
		evictList: list.New(),
		items:     make(map[interface{}]*list.Element),
		onEvicted: onEvicted,
	}
}

// Add adds a value to the cache, evicting the oldest item when full.
func (c *LRU) Add(key, value interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value.(*lruEntry).value = value
		return
	}

	ent := c.evictList.PushFront(&lruEntry{key, value})
	c.items[key] = ent

	if c.evictList.Len() > c.size {
		c.removeOldest()
	}
}

// Get looks up a key's value and marks it recently used.
func (c *LRU) Get(key interface{}) (interface{}, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		return ent.Value.(*lruEntry).value, true
	}
	return nil, false
}

// Remove drops a key from the cache if present.
func (c *LRU) Remove(key interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
}

// Len returns the number of cached items.
func (c *LRU) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.evictList.Len()
}

func (c *LRU) removeOldest() {
	if ent := c.evictList.Back(); ent != nil {
		c.removeElement(ent)
	}
}

func (c *LRU) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*lruEntry)
	delete(c.items, kv.key)
	if c.onEvicted != nil {
		c.onEvicted(kv.key, kv.value)
	}
}
