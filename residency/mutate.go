package residency

import (
	"errors"
	"fmt"

	"github.com/labiraus/svo-tracer-sub000/octree"
)

var (
	ErrBadAddress      = errors.New("residency: address out of range")
	ErrBadBatch        = errors.New("residency: graft batch does not match its record")
	ErrAlreadyGrafted  = errors.New("residency: block already has children")
	ErrInviolate       = errors.New("residency: group is inviolate")
	ErrStalePruneChild = errors.New("residency: prune record does not match the current child")
)

// Store a batch produced by builder.BuildSubtree at rec.GraftDataAddress
// and attach it to the block at rec.GraftAddress. Child pointers inside the
// batch are rebased onto the graft address. Must only run between frames.
func ApplyGraft(tree *octree.Octree, usage *UsageTable, rec GraftRecord, batch []octree.Block, tick uint16) error {
	if len(batch) == 0 || len(batch)%8 != 0 || uint32(len(batch)) != rec.GraftTotalSize {
		return fmt.Errorf("%w: %d blocks for a total size of %d", ErrBadBatch, len(batch), rec.GraftTotalSize)
	}
	if rec.GraftAddress >= uint32(len(tree.Blocks)) {
		return fmt.Errorf("%w: graft address %d", ErrBadAddress, rec.GraftAddress)
	}
	if tree.Blocks[rec.GraftAddress].HasChildren() {
		return fmt.Errorf("%w: block %d", ErrAlreadyGrafted, rec.GraftAddress)
	}

	start := uint64(rec.GraftDataAddress) * 8
	end := start + uint64(len(batch))
	if end > uint64(octree.NoChildren) {
		return fmt.Errorf("%w: graft data address %d", ErrBadAddress, rec.GraftDataAddress)
	}

	for uint64(len(tree.Blocks)) < end {
		tree.Blocks = append(tree.Blocks, octree.Block{Child: octree.NoChildren})
	}
	tree.BlockCount = uint32(len(tree.Blocks))
	usage.grow(groupCount(tree))

	usage.attach(rec.GraftDataAddress, rec.GraftAddress, rec.Depth+1, tick)
	for i, b := range batch {
		index := uint32(start) + uint32(i)
		if b.HasChildren() {
			b.Child += rec.GraftDataAddress
			group := index / 8
			usage.attach(b.Child, index, usage.depths[group]+1, tick)
		}
		tree.Blocks[index] = b
	}

	tree.Blocks[rec.GraftAddress].Child = rec.GraftDataAddress
	return nil
}

// Apply a prune record. Groups made evictable again are stamped with tick.
// Must only run between frames.
func ApplyPrune(tree *octree.Octree, usage *UsageTable, rec PruneRecord, tick uint16) error {
	if rec.Properties.Has(IsBaseBlock) {
		if rec.Properties.Has(CullChild) {
			return fmt.Errorf("%w: cannot cull children of base block %d", ErrInviolate, rec.Address)
		}
		if rec.Address >= uint32(len(tree.BaseBlocks)) {
			return fmt.Errorf("%w: base block %d", ErrBadAddress, rec.Address)
		}
		if rec.Properties.Has(UpdateChunk) {
			tree.BaseBlocks[rec.Address] = octree.ChunkMask(rec.Chunk)
		}
		return nil
	}

	if rec.Address >= uint32(len(tree.Blocks)) {
		return fmt.Errorf("%w: block %d", ErrBadAddress, rec.Address)
	}
	block := &tree.Blocks[rec.Address]

	if rec.Properties.Has(CullChild) {
		if block.Child != rec.ChildAddress {
			return fmt.Errorf("%w: block %d points at group %d, not %d", ErrStalePruneChild, rec.Address, block.Child, rec.ChildAddress)
		}
		if usage.Record(rec.ChildAddress).IsInviolate() {
			return fmt.Errorf("%w: group %d", ErrInviolate, rec.ChildAddress)
		}

		if rec.ColourAddress != octree.NoChildren {
			if rec.ColourAddress >= uint32(len(tree.Blocks)) {
				return fmt.Errorf("%w: colour source %d", ErrBadAddress, rec.ColourAddress)
			}
			src := tree.Blocks[rec.ColourAddress]
			block.Colour = src.Colour
			block.NormalPitch, block.NormalYaw = src.NormalPitch, src.NormalYaw
			block.Opacity = src.Opacity
		}

		if children, ok := tree.Group(rec.ChildAddress); ok {
			for i := range children {
				children[i] = octree.Block{Child: octree.NoChildren}
			}
		}
		block.Child = octree.NoChildren
		usage.release(rec.ChildAddress)
	}

	if rec.Properties.Has(UpdateChunk) {
		block.Chunk = octree.ChunkMask(rec.Chunk)
	}

	if rec.Properties.Has(AlterViolability) {
		usage.setInviolate(rec.Address/8, rec.Properties.Has(MakeInviolate), tick)
	}
	return nil
}
