package data

import (
	"math"
	"sync"

	"mppt-sim/internal/model"
)

// DefaultCacheEntries bounds a CurrentCache created with a zero limit.
const DefaultCacheEntries = 1 << 20

type cacheKey struct {
	kind model.ModelType
	v    int64
	g    int64
	t    int64
}

// CurrentCache memoizes solved cell currents keyed on quantized
// (model, voltage, irradiance, temperature). Voltage is quantized to 0.1 mV
// and the environment to 0.01 units, so nearby queries share an entry.
//
// It is safe for concurrent use; simulations running in parallel can share
// one cache. When the entry limit is reached the cache is cleared.
type CurrentCache struct {
	mu    sync.RWMutex
	store map[cacheKey]float64
	limit int

	params model.CellParams
	solver map[model.ModelType]*model.Cell

	hits   uint64
	misses uint64
}

func NewCurrentCache(params model.CellParams, limit int) *CurrentCache {
	if limit <= 0 {
		limit = DefaultCacheEntries
	}
	return &CurrentCache{
		store:  make(map[cacheKey]float64),
		limit:  limit,
		params: params,
		solver: make(map[model.ModelType]*model.Cell),
	}
}

func quantize(x, scale float64) int64 {
	return int64(math.Round(x * scale))
}

func keyFor(m model.ModelType, v float64, env model.Conditions) cacheKey {
	return cacheKey{
		kind: m,
		v:    quantize(v, 1e4),
		g:    quantize(env.Irradiance, 1e2),
		t:    quantize(env.Temperature, 1e2),
	}
}

// Get returns a cached current if one is stored.
func (c *CurrentCache) Get(m model.ModelType, v float64, env model.Conditions) (float64, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.store[keyFor(m, v, env)]
	return i, ok
}

// Set stores a current.
func (c *CurrentCache) Set(m model.ModelType, v float64, env model.Conditions, i float64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(keyFor(m, v, env), i)
}

func (c *CurrentCache) setLocked(k cacheKey, i float64) {
	if len(c.store) >= c.limit {
		c.store = make(map[cacheKey]float64)
	}
	c.store[k] = i
}

// Lookup returns a model.LookupFunc backed by the cache. Misses are solved
// with the cache's cell parameters and stored, so the lookup always hits.
func (c *CurrentCache) Lookup() model.LookupFunc {
	return func(m model.ModelType, v float64, env model.Conditions) (float64, bool) {
		k := keyFor(m, v, env)

		c.mu.RLock()
		i, ok := c.store[k]
		c.mu.RUnlock()
		if ok {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			return i, true
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.misses++
		if i, ok := c.store[k]; ok {
			return i, true
		}
		solver, ok := c.solver[m]
		if !ok {
			solver = model.NewCellWithParams(m, c.params)
			c.solver[m] = solver
		}
		i = solver.Model(v, env)
		c.setLocked(k, i)
		return i, true
	}
}

type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

func (c *CurrentCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Entries: len(c.store), Hits: c.hits, Misses: c.misses}
}

// Clear removes all entries and resets the counters.
func (c *CurrentCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[cacheKey]float64)
	c.hits, c.misses = 0, 0
}
