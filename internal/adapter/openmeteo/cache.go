package openmeteo

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
	"github.com/couchcryptid/mine-metrics-etl/internal/pipeline"
)

// CachedReader wraps a WeatherReader with an in-memory LRU cache keyed by
// date. Reprocessing runs touch the same dates repeatedly; past observations
// never change, so a hit saves a round trip to the API.
type CachedReader struct {
	inner pipeline.WeatherReader
	cache *lruCache
}

// NewCachedReader creates a cache decorator around a weather reader.
func NewCachedReader(inner pipeline.WeatherReader, maxEntries int) *CachedReader {
	return &CachedReader{
		inner: inner,
		cache: newLRUCache(maxEntries),
	}
}

func (c *CachedReader) ReadWeather(ctx context.Context, day time.Time) ([]domain.WeatherRecord, error) {
	key := domain.Day(day).Format("2006-01-02")
	if records, ok := c.cache.get(key); ok {
		return records, nil
	}
	records, err := c.inner.ReadWeather(ctx, day)
	if err != nil {
		return records, err
	}
	// Only cache non-empty results so not-yet-published observations are
	// re-fetched on the next run.
	if len(records) > 0 {
		c.cache.put(key, records)
	}
	return records, nil
}

// lruCache is a simple thread-safe LRU cache for daily weather records.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []domain.WeatherRecord
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]domain.WeatherRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []domain.WeatherRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
