package residency

import (
	"time"

	"github.com/gammazero/deque"
	"github.com/labiraus/svo-tracer-sub000/builder"
	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/log"
	"github.com/labiraus/svo-tracer-sub000/octree"
)

var logger = log.New("residency")

// GraftOptions controls how the tree grows and shrinks between frames.
type GraftOptions struct {
	// No blocks are grafted below this depth.
	MaxDepth uint8

	// Number of levels built per request. Defaults to 1.
	Levels uint8

	// Requests older than this many ticks are discarded.
	StaleAfter uint16

	// Groups unused for more than this many ticks are evicted. 0 disables
	// eviction.
	EvictAfter uint16

	// Max grafts per run; 0 means unlimited.
	MaxGrafts int
}

// GraftStats summarizes a single Grafter run.
type GraftStats struct {
	Requests  int
	Stale     int
	Discarded int
	Grafted   int
	Blocks    int
	Pruned    int
	Elapsed   time.Duration
}

// Grafter services child requests by building the missing subtrees from
// the geometry the tree was built from.
type Grafter struct {
	geo      geometry.Predicate
	opts     GraftOptions
	requests *Queue[ChildRequest]

	// Groups released by eviction.
	free deque.Deque[uint32]
}

// Create a grafter that drains requests from the given queue.
func NewGrafter(geo geometry.Predicate, requests *Queue[ChildRequest], opts GraftOptions) *Grafter {
	if opts.Levels == 0 {
		opts.Levels = 1
	}
	if opts.MaxDepth > builder.MaxTreeDepth {
		opts.MaxDepth = builder.MaxTreeDepth
	}
	return &Grafter{
		geo:      geo,
		opts:     opts,
		requests: requests,
	}
}

// Drain pending child requests, graft the subtrees they ask for and evict
// stale groups. Must only run between frames.
func (g *Grafter) Run(tree *octree.Octree, usage *UsageTable, now uint16) (GraftStats, error) {
	start := time.Now()
	var stats GraftStats

	seen := make(map[uint32]struct{})
	for _, req := range g.requests.Drain() {
		stats.Requests++
		if !Fresh(req.Tick, now, g.opts.StaleAfter) {
			stats.Stale++
			continue
		}
		if _, dup := seen[req.Address]; dup || !g.wants(tree, req) {
			stats.Discarded++
			continue
		}
		if g.opts.MaxGrafts > 0 && stats.Grafted >= g.opts.MaxGrafts {
			stats.Discarded++
			continue
		}
		seen[req.Address] = struct{}{}

		levels := g.opts.Levels
		if remaining := g.opts.MaxDepth - req.Depth; levels > remaining {
			levels = remaining
		}
		batch, err := builder.BuildSubtree(g.geo, req.Location, req.Depth, levels)
		if err != nil {
			return stats, err
		}

		rec := GraftRecord{
			GraftDataAddress: g.allocate(tree, len(batch)),
			GraftTotalSize:   uint32(len(batch)),
			Depth:            req.Depth,
			GraftAddress:     req.Address,
		}
		if err = ApplyGraft(tree, usage, rec, batch, now); err != nil {
			return stats, err
		}
		stats.Grafted++
		stats.Blocks += len(batch)
	}

	if g.opts.EvictAfter > 0 {
		for _, rec := range Evict(tree, usage, now, g.opts.EvictAfter) {
			if err := ApplyPrune(tree, usage, rec, now); err != nil {
				return stats, err
			}
			g.free.PushBack(rec.ChildAddress)
			stats.Pruned++
		}
	}

	stats.Elapsed = time.Since(start)
	observeGraftRun(stats)
	if stats.Requests != 0 || stats.Pruned != 0 {
		logger.Debugf(
			"graft run at tick %d: requests: %d, stale: %d, discarded: %d, grafted: %d (%d blocks), pruned: %d in %d ms",
			now, stats.Requests, stats.Stale, stats.Discarded, stats.Grafted, stats.Blocks, stats.Pruned,
			stats.Elapsed.Nanoseconds()/1e6,
		)
	}
	return stats, nil
}

// Returns true if the request still points at a childless block that
// straddles a surface above the max depth.
func (g *Grafter) wants(tree *octree.Octree, req ChildRequest) bool {
	if req.Depth >= g.opts.MaxDepth || req.Address >= uint32(len(tree.Blocks)) {
		return false
	}
	b := tree.Blocks[req.Address]
	return !b.HasChildren() && b.Chunk.CanHaveChildren()
}

// Pick the group address for a batch of n blocks. Single groups reuse
// evicted addresses; larger batches need contiguous space past the end of
// the block array.
func (g *Grafter) allocate(tree *octree.Octree, n int) uint32 {
	if n == 8 && g.free.Len() != 0 {
		return g.free.PopFront()
	}
	return uint32((len(tree.Blocks) + 7) / 8)
}
