package rereader

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/chart-consensus/internal/domain"
	"github.com/couchcryptid/chart-consensus/internal/observability"
)

// CachedRereader wraps a Rereader with an in-memory LRU cache keyed by chart
// and kind.
type CachedRereader struct {
	inner   domain.Rereader
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedRereader creates a cache decorator around a rereader.
func NewCachedRereader(inner domain.Rereader, maxEntries int, metrics *observability.Metrics) *CachedRereader {
	return &CachedRereader{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedRereader) Reread(ctx context.Context, req domain.RepairRequest) (domain.Series, error) {
	key := cacheKey(req)
	if series, ok := c.cache.get(key); ok {
		c.metrics.RereaderCache.WithLabelValues("hit").Inc()
		return series, nil
	}
	c.metrics.RereaderCache.WithLabelValues("miss").Inc()

	series, err := c.inner.Reread(ctx, req)
	if err != nil {
		return series, err
	}
	// Only cache series that pass the validity filter so a bad read can be retried.
	if _, reason := domain.ValidateSeries(req.Kind, series); reason == "" {
		c.cache.put(key, series)
	}
	return series, nil
}

func cacheKey(req domain.RepairRequest) string {
	return fmt.Sprintf("%s|%d|%s|%s", req.Chart.SourceFile, req.Chart.Page, req.Chart.Section, req.Kind)
}

// lruCache is a thread-safe LRU cache of series. The list front is the most
// recently used entry.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List
	entries    map[string]*list.Element
}

type entry struct {
	key   string
	value domain.Series
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (domain.Series, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return domain.Series{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry).value, true
}

func (c *lruCache) put(key string, value domain.Series) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry).value = value
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&entry{key: key, value: value})
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
