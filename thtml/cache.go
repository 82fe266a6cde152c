package thtml

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// CacheStats reports the accumulated counters of the parse cache.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// domCache is the process-wide parse cache. Entries are keyed by the
// 64-bit content hash of the template source, stored fully built and
// placeholder-restored, and never evicted. Two concurrent renders of the
// same new source may both build and store the entry; the trees are
// equivalent, so the duplicated work is harmless.
type domCache struct {
	mu     sync.RWMutex
	trees  map[uint64]*Node
	hits   atomic.Uint64
	misses atomic.Uint64
}

var parseCache = &domCache{trees: make(map[uint64]*Node)}

func (c *domCache) get(key uint64) (*Node, bool) {
	c.mu.RLock()
	root, ok := c.trees[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return root, ok
}

func (c *domCache) put(key uint64, root *Node) {
	c.mu.Lock()
	c.trees[key] = root
	c.mu.Unlock()
}

func (c *domCache) stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Stats returns the accumulated parse cache counters.
func Stats() CacheStats {
	return parseCache.stats()
}

// parse builds the node forest for src, consulting the process cache
// unless disabled. Cached trees are shared between renders and must not
// be mutated; all per-render bookkeeping lives in the render state.
func parse(src []byte, useCache bool) *Node {
	if !useCache {
		return parseBytes(src)
	}
	key := xxhash.Sum64(src)
	if root, ok := parseCache.get(key); ok {
		return root
	}
	root := parseBytes(src)
	parseCache.put(key, root)
	return root
}

// parseBytes runs the protect, tokenize and build stages over src. The
// placeholder table is scoped to this one parse and is fully consumed by
// the builder, so the returned tree holds restored source text.
func parseBytes(src []byte) *Node {
	p := newProtector()
	masked := p.mask(string(src))
	return buildForest(tokenize(masked), p)
}

// svgCache memoizes compiled diagram SVG by source hash, so the same
// diagram rendered from several templates compiles once per process.
var svgCache = struct {
	mu   sync.RWMutex
	svgs map[uint64][]byte
}{svgs: make(map[uint64][]byte)}

func cachedSVG(key uint64) ([]byte, bool) {
	svgCache.mu.RLock()
	svg, ok := svgCache.svgs[key]
	svgCache.mu.RUnlock()
	return svg, ok
}

func storeSVG(key uint64, svg []byte) {
	svgCache.mu.Lock()
	svgCache.svgs[key] = svg
	svgCache.mu.Unlock()
}
