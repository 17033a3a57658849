package residency

import (
	"github.com/labiraus/svo-tracer-sub000/octree"
)

// UsageTable holds one UsageRecord per block group.
type UsageTable struct {
	records []UsageRecord

	// Parent block and block depth per group. Kept apart from the records
	// so that inviolate groups can be made evictable again.
	parents []uint32
	depths  []uint8
}

// Build the usage table for a freshly loaded tree. Groups hanging off the
// dense prefix are inviolate; every other reachable group is stamped with
// tick.
func NewUsageTable(tree *octree.Octree, tick uint16) *UsageTable {
	u := &UsageTable{}
	u.grow(groupCount(tree))

	var walk func(group uint32, depth uint8)
	walk = func(group uint32, depth uint8) {
		blocks, ok := tree.Group(group)
		if !ok {
			return
		}
		u.depths[group] = depth
		for octant, b := range blocks {
			if !b.HasChildren() || b.Child >= uint32(len(u.records)) {
				continue
			}
			parent := group*8 + uint32(octant)
			u.records[b.Child] = UsageRecord{LastTick: tick, ParentAddress: parent}
			u.parents[b.Child] = parent
			walk(b.Child, depth+1)
		}
	}

	for group := uint32(0); group < tree.BaseGroupCount() && group < uint32(len(u.records)); group++ {
		if tree.HasBaseGroup(group) {
			u.records[group] = Inviolate
			walk(group, tree.BaseDepth+2)
		}
	}
	return u
}

func groupCount(tree *octree.Octree) int {
	return (len(tree.Blocks) + 7) / 8
}

// Extend the table to n groups. New groups are unused.
func (u *UsageTable) grow(n int) {
	for len(u.records) < n {
		u.records = append(u.records, UsageRecord{ParentAddress: octree.NoChildren})
		u.parents = append(u.parents, octree.NoChildren)
		u.depths = append(u.depths, 0)
	}
}

// The number of tracked groups.
func (u *UsageTable) Len() int {
	return len(u.records)
}

// Get the record for a group.
func (u *UsageTable) Record(group uint32) UsageRecord {
	if group >= uint32(len(u.records)) {
		return UsageRecord{ParentAddress: octree.NoChildren}
	}
	return u.records[group]
}

// Mark a group as used at tick. Inviolate and unused groups are left alone.
func (u *UsageTable) Touch(group uint32, tick uint16) {
	if group >= uint32(len(u.records)) {
		return
	}
	rec := &u.records[group]
	if rec.IsInviolate() || rec.ParentAddress == octree.NoChildren {
		return
	}
	rec.LastTick = tick
}

func (u *UsageTable) setInviolate(group uint32, inviolate bool, tick uint16) {
	if group >= uint32(len(u.records)) {
		return
	}
	if inviolate {
		u.records[group] = Inviolate
		return
	}
	if u.records[group].IsInviolate() {
		u.records[group] = UsageRecord{LastTick: tick, ParentAddress: u.parents[group]}
	}
}

func (u *UsageTable) attach(group, parent uint32, depth uint8, tick uint16) {
	u.grow(int(group) + 1)
	u.records[group] = UsageRecord{LastTick: tick, ParentAddress: parent}
	u.parents[group] = parent
	u.depths[group] = depth
}

func (u *UsageTable) release(group uint32) {
	if group >= uint32(len(u.records)) {
		return
	}
	u.records[group] = UsageRecord{ParentAddress: octree.NoChildren}
	u.parents[group] = octree.NoChildren
	u.depths[group] = 0
}

// Produce prune records for every evictable group that has not been used
// within threshold ticks. Only groups without resident children qualify so
// that subtrees shrink from the leaves up.
func Evict(tree *octree.Octree, usage *UsageTable, now, threshold uint16) []PruneRecord {
	var out []PruneRecord
	for group, rec := range usage.records {
		if rec.IsInviolate() || rec.ParentAddress == octree.NoChildren {
			continue
		}
		if Fresh(rec.LastTick, now, threshold) {
			continue
		}
		if rec.ParentAddress >= uint32(len(tree.Blocks)) || tree.Blocks[rec.ParentAddress].Child != uint32(group) {
			continue
		}

		blocks, ok := tree.Group(uint32(group))
		if !ok || hasResidentChildren(blocks) {
			continue
		}

		out = append(out, PruneRecord{
			Properties:    CullChild,
			Depth:         usage.depths[group] - 1,
			Address:       rec.ParentAddress,
			ColourAddress: octree.NoChildren,
			ChildAddress:  uint32(group),
		})
	}
	return out
}

func hasResidentChildren(blocks []octree.Block) bool {
	for _, b := range blocks {
		if b.HasChildren() {
			return true
		}
	}
	return false
}
