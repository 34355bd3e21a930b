package field

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nmxmxh/dmct/internal/metrics"
	"github.com/nmxmxh/dmct/internal/wave"
)

// cascadeGuard keeps a node from feeding a rebroadcast storm. It remembers
// delivered emission ids and the lineage roots the node already cascaded.
// Retention is bounded: both filters are rebuilt after ExpectedElements
// insertions.
type cascadeGuard struct {
	mu       sync.Mutex
	seen     *bloom.BloomFilter
	lineages *bloom.BloomFilter
	added    uint

	maxHops  int
	floor    float64
	capacity uint
	fpRate   float64
}

func newCascadeGuard(cfg Config) *cascadeGuard {
	g := &cascadeGuard{
		maxHops:  cfg.MaxHops,
		floor:    cfg.AmplitudeFloor,
		capacity: cfg.SeenFilter.ExpectedElements,
		fpRate:   cfg.SeenFilter.FalsePositiveRate,
	}
	if g.capacity == 0 {
		g.capacity = DefaultConfig().SeenFilter.ExpectedElements
	}
	if g.fpRate <= 0 || g.fpRate >= 1 {
		g.fpRate = DefaultConfig().SeenFilter.FalsePositiveRate
	}
	g.reset()
	return g
}

func (g *cascadeGuard) reset() {
	g.seen = bloom.NewWithEstimates(g.capacity, g.fpRate)
	g.lineages = bloom.NewWithEstimates(g.capacity, g.fpRate)
	g.added = 0
}

func (g *cascadeGuard) note() {
	g.added++
	if g.added >= g.capacity {
		g.reset()
	}
}

// firstDelivery reports whether id has not been delivered before and marks
// it as delivered.
func (g *cascadeGuard) firstDelivery(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seen.TestAndAdd([]byte(id)) {
		return false
	}
	g.note()
	return true
}

// claimLineage marks root as handled by this node. It reports false when
// the node already emitted or cascaded within that lineage.
func (g *cascadeGuard) claimLineage(root string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lineages.TestAndAdd([]byte(root)) {
		return false
	}
	g.note()
	return true
}

// admit checks the hop and amplitude limits, then claims the lineage.
// The returned reason is empty when the cascade may proceed.
func (g *cascadeGuard) admit(parent *wave.Emission) string {
	if g.maxHops > 0 && parent.Hops()+1 > g.maxHops {
		return metrics.ReasonHops
	}
	if wave.CascadedAmplitude(parent) < g.floor {
		return metrics.ReasonFloor
	}
	if !g.claimLineage(parent.Root()) {
		return metrics.ReasonLineage
	}
	return ""
}
