// Package memo adapts the teacher's LRU cache (cache/cache.go) from caching
// live DNS responses to memoizing Config.LookupZone: since a Config is
// immutable after construction, LookupZone is a pure function of (server,
// query), so the same container/list + mutex LRU shape works here with the
// response-caching concerns (TTL, response copying) dropped — this is
// explicitly NOT the DNS response cache the spec's Non-goals exclude; it
// only accelerates a pure lookup repeated across many equivalence classes.
package memo

import (
	"container/list"
	"sync"

	"github.com/classmarkets/dnsverify/internal/model"
)

type zoneLookupKey struct {
	server model.ServerId
	query  string
}

type entry struct {
	zone *model.Zone
	ok   bool
	elem *list.Element
}

// ZoneLookupCache memoizes Config.LookupZone results. Safe for concurrent
// use (needed when internal/verifier fans EC processing out over workers).
type ZoneLookupCache struct {
	cfg     *model.Config
	maxSize int

	mu    sync.Mutex
	cache map[zoneLookupKey]entry
	lru   *list.List
}

// New returns a cache memoizing lookups against cfg, holding at most
// maxSize entries (least-recently-used eviction).
func New(cfg *model.Config, maxSize int) *ZoneLookupCache {
	return &ZoneLookupCache{
		cfg:     cfg,
		maxSize: maxSize,
		cache:   map[zoneLookupKey]entry{},
		lru:     list.New(),
	}
}

// LookupZone returns cfg.LookupZone(server, query), memoized.
func (c *ZoneLookupCache) LookupZone(server model.ServerId, query model.Name) (*model.Zone, bool) {
	key := zoneLookupKey{server: server, query: query.String()}

	c.mu.Lock()
	if e, ok := c.cache[key]; ok {
		c.lru.MoveToBack(e.elem)
		c.mu.Unlock()
		return e.zone, e.ok
	}
	c.mu.Unlock()

	zone, ok := c.cfg.LookupZone(server, query)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.cache[key]; ok {
		c.lru.MoveToBack(e.elem)
		return e.zone, e.ok
	}
	el := c.lru.PushBack(key)
	c.cache[key] = entry{zone: zone, ok: ok, elem: el}
	c.prune()

	return zone, ok
}

func (c *ZoneLookupCache) prune() {
	for c.maxSize > 0 && len(c.cache) > c.maxSize {
		elem := c.lru.Front()
		if elem == nil {
			return
		}
		key := elem.Value.(zoneLookupKey)
		delete(c.cache, key)
		c.lru.Remove(elem)
	}
}
