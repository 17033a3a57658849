// Package builder voxelizes a geometry predicate into a sparse voxel octree.
package builder

import (
	"errors"
	"fmt"
	"time"

	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/log"
	"github.com/labiraus/svo-tracer-sub000/octree"
	"github.com/labiraus/svo-tracer-sub000/octree/addr"
)

const (
	// The deepest level a block may live at. Deeper nodes would not fit
	// the 64-bit coordinates used for traversal.
	MaxTreeDepth uint8 = 62
)

var (
	ErrInvalidDepth = errors.New("builder: invalid tree depth")
)

var logger = log.New("builder")

// Options controls the shape of the generated tree.
type Options struct {
	// The number of densely stored levels.
	BaseDepth uint8

	// The deepest level that may contain blocks.
	MaxDepth uint8

	// The number of pre-allocated block slots. Values smaller than a full
	// layer beneath the dense prefix are raised to fit that layer.
	MaxSize uint32
}

// Validate the options and return a copy with MaxSize adjusted.
func (o Options) normalize() (Options, error) {
	if o.BaseDepth == 0 || o.BaseDepth > octree.MaxBaseDepth {
		return o, fmt.Errorf("%w: base depth must be in [1, %d]; got %d", ErrInvalidDepth, octree.MaxBaseDepth, o.BaseDepth)
	}
	if o.MaxDepth < o.BaseDepth+2 || o.MaxDepth > MaxTreeDepth {
		return o, fmt.Errorf("%w: max depth must be in [%d, %d]; got %d", ErrInvalidDepth, o.BaseDepth+2, MaxTreeDepth, o.MaxDepth)
	}

	if minSize := InitialLayerSize(o.BaseDepth); o.MaxSize < minSize {
		logger.Debugf("raising max size from %d to %d blocks", o.MaxSize, minSize)
		o.MaxSize = minSize
	}
	return o, nil
}

// Get the number of block slots in the first sparse layer.
func InitialLayerSize(baseDepth uint8) uint32 {
	return 1 << (3*uint32(baseDepth) + 6)
}

// Stats collects counters for a single build.
type Stats struct {
	BaseNodes uint32
	Blocks    uint32
	Groups    uint32

	// Branches that could not be expanded because the free address
	// queue ran dry.
	Truncated uint32

	MaxDepth  uint8
	BuildTime time.Duration
}

type builder struct {
	geo      geometry.Predicate
	maxDepth uint8

	blocks []octree.Block
	free   *freeList

	// The highest written block index + 1.
	used uint32

	stats Stats
}

// Build a tree for geo.
//
// The dense prefix is populated first. Every boundary node right below the
// prefix then receives a group of 8 blocks; the addresses of the remaining
// groups in that layer seed the free address queue. Finally each block that
// straddles a surface is expanded recursively until MaxDepth is reached or
// the free addresses run out, in which case the branch is left without
// children.
func Build(geo geometry.Predicate, opts Options) (*octree.Octree, Stats, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, Stats{}, err
	}

	start := time.Now()
	tree := &octree.Octree{
		BaseDepth:  opts.BaseDepth,
		BaseBlocks: make([]octree.ChunkMask, addr.PowSum(uint16(opts.BaseDepth))),
	}

	b := &builder{
		geo:      geo,
		maxDepth: opts.MaxDepth,
		free:     newFreeList(tree.BaseGroupCount(), opts.MaxSize/8),
	}

	b.buildDense(tree)
	pending := b.buildInitialLayer(tree)
	for _, p := range pending {
		b.expand(p.index, p.loc, p.depth)
	}

	// Trim unused slack.
	tree.Blocks = b.blocks[:b.used:b.used]
	tree.BlockCount = b.used

	b.stats.BaseNodes = uint32(len(tree.BaseBlocks))
	b.stats.Blocks = b.used
	b.stats.BuildTime = time.Since(start)
	if b.stats.MaxDepth < opts.BaseDepth {
		b.stats.MaxDepth = opts.BaseDepth
	}
	observeBuild(b.stats)

	logger.Debugf(
		"tree build time: %d ms, base nodes: %d, blocks: %d, groups: %d, max depth: %d, truncated: %d, free groups: %d",
		b.stats.BuildTime.Nanoseconds()/1e6,
		b.stats.BaseNodes, b.stats.Blocks, b.stats.Groups, b.stats.MaxDepth, b.stats.Truncated, b.free.len(),
	)
	return tree, b.stats, nil
}

// Fill the chunk masks of the dense prefix one level at a time.
func (b *builder) buildDense(tree *octree.Octree) {
	for depth := uint16(1); depth <= uint16(tree.BaseDepth); depth++ {
		offset := addr.PowSum(depth - 1)
		cells := uint32(1) << (3 * uint32(depth))
		for cell := uint32(0); cell < cells; cell++ {
			// Nodes below a uniform parent octant share its occupancy.
			if depth > 1 {
				parent := tree.BaseBlocks[addr.PowSum(depth-2)+cell>>3].Pair(cell & 7)
				if parent != octree.Boundary {
					tree.BaseBlocks[offset+cell] = octree.UniformMask(parent)
					continue
				}
			}

			x, y, z := addr.Deinterleave(cell)
			v := geometry.VolumeFromLocation(addr.LocationFromCell(x, y, z, depth), depth)
			tree.BaseBlocks[offset+cell] = chunkMask(b.geo, v)
		}
	}
}

type pendingBlock struct {
	index uint32
	loc   addr.Location
	depth uint16
}

// Create a block group for each boundary node at BaseDepth+1. Groups that
// are not needed are handed to the free address queue.
func (b *builder) buildInitialLayer(tree *octree.Octree) []pendingBlock {
	var pending []pendingBlock
	parentDepth := uint16(tree.BaseDepth) + 1
	for group := uint32(0); group < tree.BaseGroupCount(); group++ {
		if !tree.HasBaseGroup(group) {
			b.free.push(group)
			continue
		}

		x, y, z := addr.Deinterleave(group)
		parent := addr.LocationFromCell(x, y, z, parentDepth)
		for octant := uint32(0); octant < 8; octant++ {
			loc := parent.Child(parentDepth, octant)
			index := group*8 + octant
			block := b.writeBlock(index, loc, parentDepth+1)
			if block.Chunk.CanHaveChildren() && parentDepth+1 < uint16(b.maxDepth) {
				pending = append(pending, pendingBlock{index, loc, parentDepth + 1})
			}
		}
		b.stats.Groups++
	}
	return pending
}

// Attach a child group to the block at index and recurse into any child
// that straddles a surface.
func (b *builder) expand(index uint32, loc addr.Location, depth uint16) {
	group, ok := b.free.pop()
	if !ok {
		b.stats.Truncated++
		logger.Debugf("free addresses exhausted; truncating branch at %s (depth %d)", loc, depth)
		return
	}
	b.blocks[index].Child = group
	b.stats.Groups++

	var expandMask uint8
	for octant := uint32(0); octant < 8; octant++ {
		block := b.writeBlock(group*8+octant, loc.Child(depth, octant), depth+1)
		if block.Chunk.CanHaveChildren() && depth+1 < uint16(b.maxDepth) {
			expandMask |= 1 << octant
		}
	}

	for octant := uint32(0); octant < 8; octant++ {
		if expandMask&(1<<octant) != 0 {
			b.expand(group*8+octant, loc.Child(depth, octant), depth+1)
		}
	}
}

// Build the block for the depth node at loc and store it at index.
func (b *builder) writeBlock(index uint32, loc addr.Location, depth uint16) octree.Block {
	block := MakeBlock(b.geo, geometry.VolumeFromLocation(loc, depth))
	b.ensure(index + 1)
	b.blocks[index] = block
	if index+1 > b.used {
		b.used = index + 1
	}
	if uint8(depth) > b.stats.MaxDepth {
		b.stats.MaxDepth = uint8(depth)
	}
	return block
}

// Grow the block list to at least n entries. New slots have no children.
func (b *builder) ensure(n uint32) {
	for uint32(len(b.blocks)) < n {
		b.blocks = append(b.blocks, octree.Block{Child: octree.NoChildren})
	}
}

// Build a block for volume v: occupancy mask, surface normal and colour.
func MakeBlock(geo geometry.Predicate, v geometry.BoundingVolume) octree.Block {
	block := octree.Block{
		Child: octree.NoChildren,
		Chunk: chunkMask(geo, v),
	}
	block.NormalPitch, block.NormalYaw = geo.SurfaceNormal(v)
	block.Colour = geo.SurfaceColour(v)
	if block.Chunk.Fold()&octree.Solid != 0 {
		block.Opacity = 255
	}
	return block
}

func chunkMask(geo geometry.Predicate, v geometry.BoundingVolume) octree.ChunkMask {
	var mask octree.ChunkMask
	for octant := uint32(0); octant < 8; octant++ {
		sub := v.Octant(octant)
		var pair uint8
		if geo.ContainsAir(sub) {
			pair |= octree.Air
		}
		if geo.ContainsSolid(sub) {
			pair |= octree.Solid
		}
		mask = mask.WithPair(octant, pair)
	}
	return mask
}
