package builder

import (
	"fmt"

	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/octree"
	"github.com/labiraus/svo-tracer-sub000/octree/addr"
)

// Build the descendants of the block at (loc, depth) for up to levels
// levels. The returned batch starts with the block's own 8 children; child
// pointers inside the batch are group addresses relative to the start of the
// batch and must be offset by the group the batch is stored at.
func BuildSubtree(geo geometry.Predicate, loc addr.Location, depth, levels uint8) ([]octree.Block, error) {
	if levels == 0 {
		return nil, fmt.Errorf("%w: subtree must span at least one level", ErrInvalidDepth)
	}
	if uint16(depth)+uint16(levels) > uint16(MaxTreeDepth) {
		return nil, fmt.Errorf("%w: subtree below depth %d exceeds max depth %d", ErrInvalidDepth, depth, MaxTreeDepth)
	}

	b := &builder{
		geo:      geo,
		maxDepth: depth + levels,
		// Group 0 holds the direct children.
		free: newFreeList(1, octree.NoChildren/8),
	}

	loc = loc.Truncate(uint16(depth))
	var expandMask uint8
	for octant := uint32(0); octant < 8; octant++ {
		block := b.writeBlock(octant, loc.Child(uint16(depth), octant), uint16(depth)+1)
		if block.Chunk.CanHaveChildren() && depth+1 < b.maxDepth {
			expandMask |= 1 << octant
		}
	}
	for octant := uint32(0); octant < 8; octant++ {
		if expandMask&(1<<octant) != 0 {
			b.expand(octant, loc.Child(uint16(depth), octant), uint16(depth)+1)
		}
	}

	return b.blocks[:b.used], nil
}
