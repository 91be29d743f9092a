package leaderboard

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "leaderboard_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "leaderboard_cache_miss_total"})
)

type cachedBoard struct {
	Entries   []Entry
	UpdatedAt time.Time
}

// Cache holds computed leaderboards per competition with a short TTL.
// Concurrent readers of a cold key share one computation via singleflight.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*cachedBoard
	ttl   time.Duration
	group singleflight.Group
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		items: make(map[string]*cachedBoard),
		ttl:   ttl,
	}
}

func (c *Cache) get(competitionID string) ([]Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[competitionID]
	if !ok || (c.ttl > 0 && time.Since(v.UpdatedAt) > c.ttl) {
		return nil, false
	}
	return v.Entries, true
}

func (c *Cache) set(competitionID string, entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[competitionID] = &cachedBoard{Entries: entries, UpdatedAt: time.Now()}
}

// Invalidate drops the cached board so the next read recomputes.
func (c *Cache) Invalidate(competitionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, competitionID)
}

// GetOrCompute returns the cached board or computes it, collapsing
// concurrent computations for the same competition into one.
func (c *Cache) GetOrCompute(competitionID string, compute func() ([]Entry, error)) ([]Entry, error) {
	if entries, ok := c.get(competitionID); ok {
		cacheHits.Inc()
		return entries, nil
	}
	cacheMiss.Inc()

	v, err, _ := c.group.Do(competitionID, func() (interface{}, error) {
		if entries, ok := c.get(competitionID); ok {
			return entries, nil
		}
		entries, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(competitionID, entries)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]Entry), nil
}
