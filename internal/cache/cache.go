// Package cache provides a bounded in-process TTL cache.
//
// Lookup layers that used to grow without bound (contact-name resolution,
// notification-preference lookups) go through this cache instead: entries
// expire after a TTL and the entry count never exceeds a fixed capacity.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats 缓存运行统计
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// Cache 带容量上限与 TTL 的缓存，LRU 淘汰
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64

	now func() time.Time // 可注入时钟，便于测试
}

// New 创建缓存。capacity 必须 > 0。
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get 查询。过期条目按 miss 处理并删除。
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	ent := el.Value.(*entry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return ent.value, true
}

// Set 写入。超出容量时淘汰最久未使用的条目。
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.value = value
		ent.expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	for len(c.items) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}

	ent := &entry{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	c.items[key] = c.order.PushFront(ent)
}

// Delete 删除一个键（不存在时为 no-op）
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
}

// Stats 返回当前统计快照
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.items),
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	delete(c.items, ent.key)
	c.order.Remove(el)
}
