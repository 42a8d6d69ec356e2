package search

import (
	"container/list"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/knowledge-engine/questionbank/internal/text"
)

const (
	DefaultCacheCapacity = 1000
	DefaultCacheTTL      = time.Hour
)

type cacheItem struct {
	key      string
	results  []Result
	storedAt time.Time
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Enabled     bool          `json:"enabled"`
	Size        int           `json:"size"`
	Capacity    int           `json:"capacity"`
	TTL         time.Duration `json:"ttl"`
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Evictions   int64         `json:"evictions"`
	Expirations int64         `json:"expirations"`
}

// ResultCache is a bounded LRU of ranked results where every entry also
// expires a fixed TTL after insertion, whichever comes first. A cache built
// with a non-positive capacity or TTL is disabled and always misses.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	ll       *list.List
	now      func() time.Time

	hits, misses, evictions, expirations int64
}

// CacheOption customizes a ResultCache.
type CacheOption func(*ResultCache)

// WithClock replaces time.Now, mainly for expiry tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *ResultCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewResultCache(capacity int, ttl time.Duration, opts ...CacheOption) *ResultCache {
	c := &ResultCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		ll:       list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether the cache can hold entries at all.
func (c *ResultCache) Enabled() bool {
	return c != nil && c.capacity > 0 && c.ttl > 0
}

// Get returns a copy of the cached results. Expired entries are removed and
// reported as a miss.
func (c *ResultCache) Get(key string) ([]Result, bool) {
	if !c.Enabled() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	item := elem.Value.(*cacheItem)
	if c.expired(item) {
		c.remove(elem)
		c.expirations++
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(elem)
	c.hits++
	return copyResults(item.results), true
}

// Put stores a copy of results under key. When full, expired entries go
// first, then the least recently used.
func (c *ResultCache) Put(key string, results []Result) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*cacheItem)
		item.results = copyResults(results)
		item.storedAt = now
		c.ll.MoveToFront(elem)
		return
	}

	c.items[key] = c.ll.PushFront(&cacheItem{key: key, results: copyResults(results), storedAt: now})
	if c.ll.Len() <= c.capacity {
		return
	}
	c.pruneLocked()
	for c.ll.Len() > c.capacity {
		tail := c.ll.Back()
		if tail == nil {
			break
		}
		c.remove(tail)
		c.evictions++
	}
}

// Prune drops every expired entry and returns how many were removed.
func (c *ResultCache) Prune() int {
	if !c.Enabled() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked()
}

// Purge empties the cache.
func (c *ResultCache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.ll = list.New()
}

func (c *ResultCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *ResultCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Enabled:     c.capacity > 0 && c.ttl > 0,
		Size:        c.ll.Len(),
		Capacity:    c.capacity,
		TTL:         c.ttl,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

func (c *ResultCache) pruneLocked() int {
	removed := 0
	for elem := c.ll.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*cacheItem)) {
			c.remove(elem)
			c.expirations++
			removed++
		}
		elem = prev
	}
	return removed
}

func (c *ResultCache) expired(item *cacheItem) bool {
	return c.now().Sub(item.storedAt) >= c.ttl
}

func (c *ResultCache) remove(elem *list.Element) {
	c.ll.Remove(elem)
	delete(c.items, elem.Value.(*cacheItem).key)
}

func copyResults(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	out := make([]Result, len(results))
	for i, r := range results {
		r.Question = r.Question.Clone()
		out[i] = r
	}
	return out
}

// cacheKey is everything that can change a ranking. The index generation is
// part of it so that in-flight queries against an old snapshot cannot
// poison the cache after a rebuild.
type cacheKey struct {
	Stem       string       `msgpack:"stem"`
	Type       QuestionType `msgpack:"type"`
	Subject    Subject      `msgpack:"subject"`
	Difficulty int          `msgpack:"difficulty"`
	Weights    Weights      `msgpack:"weights"`
	TopK       int          `msgpack:"top_k"`
	Threshold  float64      `msgpack:"threshold"`
	Generation string       `msgpack:"generation"`
}

// CachedScorer memoizes Scorer results. Disabling the cache changes latency
// only, never the returned ranking.
type CachedScorer struct {
	scorer *Scorer
	cache  *ResultCache
	group  singleflight.Group
	logger *logrus.Entry
}

func NewCachedScorer(scorer *Scorer, cache *ResultCache, logger *logrus.Entry) *CachedScorer {
	if logger == nil {
		logger = logrus.WithField("component", "cached_scorer")
	}
	if !cache.Enabled() {
		logger.Warn("Result cache disabled, every query is computed")
	}
	return &CachedScorer{scorer: scorer, cache: cache, logger: logger}
}

// Cache exposes the underlying cache (may be disabled).
func (c *CachedScorer) Cache() *ResultCache {
	return c.cache
}

// Score has the same contract as Scorer.Score.
func (c *CachedScorer) Score(snap *Snapshot, query Question, topK int, threshold float64) ([]Result, error) {
	if topK <= 0 || !c.cache.Enabled() || snap.Len() == 0 {
		return c.scorer.Score(snap, query, topK, threshold)
	}

	key, err := c.key(snap, query, topK, threshold)
	if err != nil {
		c.logger.WithError(err).Warn("Cannot derive cache key, computing uncached")
		return c.scorer.Score(snap, query, topK, threshold)
	}
	if results, ok := c.cache.Get(key); ok {
		return results, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		results, err := c.scorer.Score(snap, query, topK, threshold)
		if err != nil {
			return nil, err
		}
		c.cache.Put(key, results)
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return copyResults(v.([]Result)), nil
}

func (c *CachedScorer) key(snap *Snapshot, query Question, topK int, threshold float64) (string, error) {
	q := query.normalized()
	raw, err := msgpack.Marshal(cacheKey{
		Stem:       text.Normalize(q.Stem),
		Type:       q.Type,
		Subject:    q.Subject,
		Difficulty: q.Difficulty,
		Weights:    c.scorer.Weights,
		TopK:       topK,
		Threshold:  threshold,
		Generation: snap.Generation,
	})
	if err != nil {
		return "", err
	}
	return text.Fingerprint(string(raw)), nil
}
