package markdown

import (
	"sync"
	"sync/atomic"
)

// Stats 是缓存运行统计的快照，供 /-/cache/stats 输出。
type Stats struct {
	Hits           map[string]int64 `json:"hits"`
	Misses         int64            `json:"misses"`
	Writes         int64            `json:"writes"`
	Renders        int64            `json:"renders"`
	RenderFailures int64            `json:"render_failures"`
	PreGenerated   int64            `json:"pre_generated"`
	Invalidations  int64            `json:"invalidations"`
	HitRate        float64          `json:"hit_rate"`
	Entries        map[string]int   `json:"entries"`
}

type counters struct {
	mu   sync.Mutex
	hits map[string]int64

	misses         atomic.Int64
	writes         atomic.Int64
	renders        atomic.Int64
	renderFailures atomic.Int64
	preGenerated   atomic.Int64
	invalidations  atomic.Int64
}

func newCounters() *counters {
	return &counters{hits: make(map[string]int64)}
}

func (c *counters) hit(tier string) {
	c.mu.Lock()
	c.hits[tier]++
	c.mu.Unlock()
}

func (c *counters) snapshot() Stats {
	c.mu.Lock()
	hits := make(map[string]int64, len(c.hits))
	var total int64
	for tier, n := range c.hits {
		hits[tier] = n
		total += n
	}
	c.mu.Unlock()

	s := Stats{
		Hits:           hits,
		Misses:         c.misses.Load(),
		Writes:         c.writes.Load(),
		Renders:        c.renders.Load(),
		RenderFailures: c.renderFailures.Load(),
		PreGenerated:   c.preGenerated.Load(),
		Invalidations:  c.invalidations.Load(),
	}
	if lookups := total + s.Misses; lookups > 0 {
		s.HitRate = float64(total) / float64(lookups)
	}
	return s
}
