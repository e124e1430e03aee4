// Package simcache is a small in-memory cache of retrieval records keyed by
// normalized query. It stands in front of each strategy call: an exact or
// sufficiently similar earlier query short-circuits the strategy. The cache
// is a pure value store; entries are copied out, never shared.
package simcache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lexgraph/lexgraph/internal/retrieval"
)

// Cache holds recent retrieval records per (strategy, query).
type Cache struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, retrieval.Record]
	threshold float64
}

// New creates a cache holding at most size records. threshold is the minimum
// Jaccard token similarity for a non-exact query to count as a hit; a
// threshold >= 1 disables similarity matching and leaves exact hits only.
func New(size int, threshold float64) (*Cache, error) {
	entries, err := lru.New[string, retrieval.Record](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries, threshold: threshold}, nil
}

// Get returns a cached record for the query, preferring an exact match and
// falling back to the most similar cached query above the threshold.
func (c *Cache) Get(strategy, query string) (retrieval.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.entries.Get(cacheKey(strategy, query)); ok {
		return rec, true
	}
	if c.threshold >= 1 {
		return retrieval.Record{}, false
	}

	want := tokenize(query)
	if len(want) == 0 {
		return retrieval.Record{}, false
	}

	bestScore := c.threshold
	var bestKey string
	var found bool
	for _, key := range c.entries.Keys() {
		keyStrategy, keyQuery, ok := splitKey(key)
		if !ok || keyStrategy != strategy {
			continue
		}
		score := jaccard(want, tokenize(keyQuery))
		if score >= bestScore {
			bestScore = score
			bestKey = key
			found = true
		}
	}
	if !found {
		return retrieval.Record{}, false
	}
	rec, ok := c.entries.Get(bestKey)
	return rec, ok
}

// Put stores a record under its strategy and query.
func (c *Cache) Put(strategy, query string, rec retrieval.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(cacheKey(strategy, query), rec)
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func cacheKey(strategy, query string) string {
	return strategy + "\x00" + normalize(query)
}

func splitKey(key string) (strategy, query string, ok bool) {
	i := strings.IndexByte(key, 0)
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func tokenize(query string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(query)) {
		tokens[strings.Trim(field, ".,;:?!\"'()")] = true
	}
	delete(tokens, "")
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
