// Package octree defines the sparse voxel octree container shared by the
// builder, the tree store and the tracer.
//
// The shallow levels of the tree (depths 1..BaseDepth) are stored densely in
// BaseBlocks: one chunk mask per node, indexed by PowSum(depth-1) plus the
// Morton index of the node. Nodes below the dense prefix are Blocks stored in
// groups of 8 siblings; a block's Child field holds the group address of its
// children, i.e. the children live at Blocks[Child*8 : Child*8+8].
//
// Depth BaseDepth+1 has no stored nodes. Its occupancy is described by the
// dense parent mask and the children of a boundary node at that depth form
// the block group whose address is the node's Morton index.
package octree

import (
	"fmt"
	"math"

	"github.com/labiraus/svo-tracer-sub000/octree/addr"
)

// Occupancy pair values. Each octant of a chunk mask uses 2 bits: bit 0 is
// set if the octant contains empty space and bit 1 if it contains solid
// material.
const (
	Empty    uint8 = 0b00
	Air      uint8 = 0b01
	Solid    uint8 = 0b10
	Boundary uint8 = 0b11
)

// MaxBaseDepth is the deepest supported dense prefix. Deeper prefixes would
// overflow 32-bit group addresses.
const MaxBaseDepth uint8 = 8

// NoChildren is the Child sentinel of blocks without children.
const NoChildren uint32 = math.MaxUint32

// BackgroundColour is the colour of rays that leave the tree.
var BackgroundColour = [3]uint8{135, 206, 235}

// ChunkMask packs an occupancy pair for each of the 8 octants of a node.
type ChunkMask uint16

// Build a mask that uses the same pair for every octant.
func UniformMask(pair uint8) ChunkMask {
	var m ChunkMask
	for octant := uint32(0); octant < 8; octant++ {
		m = m.WithPair(octant, pair)
	}
	return m
}

// Get the occupancy pair for an octant.
func (m ChunkMask) Pair(octant uint32) uint8 {
	return uint8(m>>(octant*2)) & 0b11
}

// Return a copy of the mask with the pair for octant replaced.
func (m ChunkMask) WithPair(octant uint32, pair uint8) ChunkMask {
	shift := octant * 2
	return m&^(0b11<<shift) | ChunkMask(pair&0b11)<<shift
}

// Returns true if any octant straddles a surface and needs children.
func (m ChunkMask) CanHaveChildren() bool {
	for octant := uint32(0); octant < 8; octant++ {
		if m.Pair(octant) == Boundary {
			return true
		}
	}
	return false
}

// Combine the pairs of all octants into the occupancy pair of the node
// itself.
func (m ChunkMask) Fold() uint8 {
	var out uint8
	for octant := uint32(0); octant < 8; octant++ {
		out |= m.Pair(octant)
	}
	return out
}

func (m ChunkMask) String() string {
	return fmt.Sprintf("%016b", uint16(m))
}

// Block is a node below the dense prefix.
type Block struct {
	// Group address of the 8 children or NoChildren.
	Child uint32

	// Occupancy of the 8 octants.
	Chunk ChunkMask

	// Surface normal angles (see geometry.EncodeNormal).
	NormalPitch int16
	NormalYaw   int16

	Colour      [3]uint8
	Opacity     uint8
	Specularity uint8
	Gloss       uint8
}

// The block returned for rays that leave the tree.
func Background() Block {
	return Block{
		Child:   NoChildren,
		Colour:  BackgroundColour,
		Opacity: 255,
	}
}

// Returns true if the block references a child group.
func (b Block) HasChildren() bool {
	return b.Child != NoChildren
}

// Get the 16-bit property flags (specularity in the high byte, gloss in the
// low byte).
func (b Block) Properties() uint16 {
	return uint16(b.Specularity)<<8 | uint16(b.Gloss)
}

// Octree is the container for a voxelized scene.
type Octree struct {
	BaseDepth  uint8
	BlockCount uint32
	BaseBlocks []ChunkMask
	Blocks     []Block
}

// Get the index into BaseBlocks for the depth node containing loc. Depth
// must be in 1..BaseDepth.
func BaseIndex(depth uint16, loc addr.Location) uint32 {
	return addr.PowSum(depth-1) + loc.Prefix(depth)
}

// Get the number of groups at depth BaseDepth+1. Groups with a lower address
// hang directly off the dense prefix.
func (t *Octree) BaseGroupCount() uint32 {
	return 1 << (3 * (uint32(t.BaseDepth) + 1))
}

// Get the block group for the given address. Returns false if the group lies
// outside the block array.
func (t *Octree) Group(address uint32) ([]Block, bool) {
	start := uint64(address) * 8
	if address == NoChildren || start+8 > uint64(len(t.Blocks)) {
		return nil, false
	}
	return t.Blocks[start : start+8], true
}

// Check the container invariants.
func (t *Octree) Validate() error {
	if t.BaseDepth == 0 {
		return fmt.Errorf("%w: base depth must be at least 1", ErrCorrupt)
	}
	if exp := addr.PowSum(uint16(t.BaseDepth)); uint32(len(t.BaseBlocks)) != exp {
		return fmt.Errorf("%w: expected %d base blocks; got %d", ErrCorrupt, exp, len(t.BaseBlocks))
	}
	if uint32(len(t.Blocks)) != t.BlockCount {
		return fmt.Errorf("%w: block count %d does not match %d blocks", ErrCorrupt, t.BlockCount, len(t.Blocks))
	}
	return nil
}

// Returns true if both trees are identical field for field.
func (t *Octree) Equal(other *Octree) bool {
	if t.BaseDepth != other.BaseDepth || t.BlockCount != other.BlockCount ||
		len(t.BaseBlocks) != len(other.BaseBlocks) || len(t.Blocks) != len(other.Blocks) {
		return false
	}
	for i := range t.BaseBlocks {
		if t.BaseBlocks[i] != other.BaseBlocks[i] {
			return false
		}
	}
	for i := range t.Blocks {
		if t.Blocks[i] != other.Blocks[i] {
			return false
		}
	}
	return true
}

// Returns true if the dense prefix marks the depth BaseDepth+1 node with the
// given Morton index as a boundary, i.e. its children form a block group.
func (t *Octree) HasBaseGroup(group uint32) bool {
	if group >= t.BaseGroupCount() {
		return false
	}
	parent := addr.PowSum(uint16(t.BaseDepth)-1) + group>>3
	return t.BaseBlocks[parent].Pair(group&7) == Boundary
}

// Get the maximum block depth reachable by following child pointers.
func (t *Octree) MaxDepth() uint8 {
	maxDepth := t.BaseDepth
	var walk func(group uint32, depth uint8)
	walk = func(group uint32, depth uint8) {
		blocks, ok := t.Group(group)
		if !ok || depth >= addr.AxisBits {
			return
		}
		if depth > maxDepth {
			maxDepth = depth
		}
		for _, b := range blocks {
			if b.HasChildren() {
				walk(b.Child, depth+1)
			}
		}
	}

	for group := uint32(0); group < t.BaseGroupCount(); group++ {
		if t.HasBaseGroup(group) {
			walk(group, t.BaseDepth+2)
		}
	}
	return maxDepth
}
