package residency

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/labiraus/svo-tracer-sub000/builder"
	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/octree"
	"github.com/labiraus/svo-tracer-sub000/octree/addr"
	"github.com/labiraus/svo-tracer-sub000/types"
)

func TestChildRequestLayout(t *testing.T) {
	req := ChildRequest{
		Address:  0x04030201,
		Tick:     0x0605,
		Depth:    7,
		Location: addr.Location{X: 1, Y: 2 << 56, Z: 3},
	}
	data, err := req.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	exp := []byte{1, 2, 3, 4, 5, 6, 7, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 3, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(data, exp) {
		t.Fatalf("expected encoding\n%v\ngot\n%v", exp, data)
	}

	var decoded ChildRequest
	if err = decoded.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if decoded != req {
		t.Fatalf("expected decoded request %+v; got %+v", req, decoded)
	}

	if err = decoded.UnmarshalBinary(data[:10]); !errors.Is(err, ErrShortRecord) {
		t.Fatalf("expected ErrShortRecord; got %v", err)
	}
}

func TestRecordSizes(t *testing.T) {
	type spec struct {
		rec interface{ MarshalBinary() ([]byte, error) }
		exp int
	}
	specs := []spec{
		{PruneRecord{Properties: CullChild | UpdateChunk, Address: 9, ChildAddress: 3}, PruneRecordSize},
		{GraftRecord{GraftDataAddress: 1, GraftTotalSize: 16, Depth: 4, GraftAddress: 2}, GraftRecordSize},
		{Inviolate, UsageRecordSize},
	}
	for index, s := range specs {
		data, err := s.rec.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != s.exp {
			t.Fatalf("[spec %d] expected %d bytes; got %d", index, s.exp, len(data))
		}
	}

	var usage UsageRecord
	data, _ := Inviolate.MarshalBinary()
	if err := usage.UnmarshalBinary(data); err != nil || !usage.IsInviolate() {
		t.Fatalf("expected decoded usage record to be inviolate; got %+v (err: %v)", usage, err)
	}
}

func TestFresh(t *testing.T) {
	type spec struct {
		tick, now, threshold uint16
		exp                  bool
	}
	specs := []spec{
		{10, 10, 0, true},
		{10, 12, 2, true},
		{10, 13, 2, false},
		// Wrap around.
		{65534, 1, 3, true},
		{65534, 2, 3, false},
	}
	for index, s := range specs {
		if got := Fresh(s.tick, s.now, s.threshold); got != s.exp {
			t.Fatalf("[spec %d] expected Fresh(%d, %d, %d) to be %t", index, s.tick, s.now, s.threshold, s.exp)
		}
	}
}

func TestQueue(t *testing.T) {
	q := NewQueue[int](0)

	var wg sync.WaitGroup
	for producer := 0; producer < 4; producer++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(base + i)
			}
		}(producer * 100)
	}
	wg.Wait()

	items := q.Drain()
	if len(items) != 400 {
		t.Fatalf("expected 400 items; got %d", len(items))
	}
	if q.Len() != 0 {
		t.Fatalf("expected drained queue to be empty; got %d", q.Len())
	}

	bounded := NewQueue[int](2)
	for i := 0; i < 5; i++ {
		bounded.Push(i)
	}
	if got := bounded.Drain(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("expected the first 2 items to be kept; got %v", got)
	}
	if bounded.Dropped() != 3 {
		t.Fatalf("expected 3 dropped items; got %d", bounded.Dropped())
	}
}

func TestQueuePushLimit(t *testing.T) {
	type spec struct {
		capacity   int
		limit      int
		expKept    int
		expDropped uint64
	}
	specs := []spec{
		{0, 0, 5, 0},
		{0, 1, 1, 4},
		{0, 3, 3, 2},
		{2, 3, 2, 3},
		{4, 1, 1, 4},
	}

	for index, s := range specs {
		q := NewQueue[int](s.capacity)
		for i := 0; i < 5; i++ {
			q.PushLimit(i, s.limit)
		}
		if q.Len() != s.expKept {
			t.Fatalf("[spec %d] expected %d queued items; got %d", index, s.expKept, q.Len())
		}
		if q.Dropped() != s.expDropped {
			t.Fatalf("[spec %d] expected %d dropped items; got %d", index, s.expDropped, q.Dropped())
		}
	}
}

func TestUsageTableMarksBaseGroupsInviolate(t *testing.T) {
	tree, geo := buildSphere(t, 3)
	usage := NewUsageTable(tree, 5)

	if usage.Len() != int(tree.BlockCount/8) {
		t.Fatalf("expected %d usage records; got %d", tree.BlockCount/8, usage.Len())
	}
	for group := uint32(0); group < uint32(usage.Len()); group++ {
		rec := usage.Record(group)
		if tree.HasBaseGroup(group) != rec.IsInviolate() {
			t.Fatalf("expected group %d inviolate status to match the dense prefix", group)
		}
	}

	// Deeper groups are stamped with the load tick.
	deep, _, err := builder.Build(geo, builder.Options{BaseDepth: 1, MaxDepth: 4, MaxSize: 1 << 16})
	if err != nil {
		t.Fatal(err)
	}
	usage = NewUsageTable(deep, 5)
	stamped := 0
	for group := uint32(0); group < uint32(usage.Len()); group++ {
		rec := usage.Record(group)
		if rec.IsInviolate() || rec.ParentAddress == octree.NoChildren {
			continue
		}
		if rec.LastTick != 5 || deep.Blocks[rec.ParentAddress].Child != group {
			t.Fatalf("expected group %d to be stamped with tick 5 and point back at its parent; got %+v", group, rec)
		}
		stamped++
	}
	if stamped == 0 {
		t.Fatal("expected some non-base groups")
	}
}

func TestGrafterGrowsAndEvicts(t *testing.T) {
	tree, geo := buildSphere(t, 3)
	usage := NewUsageTable(tree, 0)
	requests := NewQueue[ChildRequest](0)
	grafter := NewGrafter(geo, requests, GraftOptions{MaxDepth: 5, StaleAfter: 4, EvictAfter: 2})

	index, loc, depth := findLeaf(t, tree)
	req := ChildRequest{Address: index, Tick: 1, Depth: uint8(depth), Location: loc}
	requests.Push(req)
	requests.Push(req)
	requests.Push(ChildRequest{Address: index, Tick: 60000, Depth: uint8(depth), Location: loc})

	stats, err := grafter.Run(tree, usage, 2)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Requests != 3 || stats.Grafted != 1 || stats.Stale != 1 || stats.Discarded != 1 {
		t.Fatalf("unexpected graft stats %+v", stats)
	}
	if err = tree.Validate(); err != nil {
		t.Fatal(err)
	}

	group := tree.Blocks[index].Child
	children, ok := tree.Group(group)
	if !ok {
		t.Fatalf("expected block %d to have a resident child group", index)
	}
	for octant := uint32(0); octant < 8; octant++ {
		v := geometry.VolumeFromLocation(loc.Child(depth, octant), depth+1)
		if exp := builder.MakeBlock(geo, v); children[octant] != exp {
			t.Fatalf("expected grafted child %d to be %+v; got %+v", octant, exp, children[octant])
		}
	}
	if rec := usage.Record(group); rec.ParentAddress != index || rec.LastTick != 2 {
		t.Fatalf("expected usage record for group %d to point at block %d; got %+v", group, index, rec)
	}

	// Keep the group alive while it is used.
	usage.Touch(group, 4)
	if stats, err = grafter.Run(tree, usage, 5); err != nil || stats.Pruned != 0 {
		t.Fatalf("expected no evictions while the group is fresh; got %+v (err: %v)", stats, err)
	}

	stats, err = grafter.Run(tree, usage, 10)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pruned != 1 {
		t.Fatalf("expected the grafted group to be evicted; got %+v", stats)
	}
	if tree.Blocks[index].HasChildren() {
		t.Fatalf("expected block %d to lose its children", index)
	}

	// The released group is reused by the next single level graft.
	requests.Push(ChildRequest{Address: index, Tick: 10, Depth: uint8(depth), Location: loc})
	if _, err = grafter.Run(tree, usage, 10); err != nil {
		t.Fatal(err)
	}
	if tree.Blocks[index].Child != group {
		t.Fatalf("expected released group %d to be reused; got %d", group, tree.Blocks[index].Child)
	}
}

func TestGraftRebasesChildPointers(t *testing.T) {
	tree, geo := buildSphere(t, 3)
	usage := NewUsageTable(tree, 0)
	index, loc, depth := findLeaf(t, tree)

	batch, err := builder.BuildSubtree(geo, loc, uint8(depth), 2)
	if err != nil {
		t.Fatal(err)
	}
	base := uint32(len(tree.Blocks)/8) + 3
	rec := GraftRecord{GraftDataAddress: base, GraftTotalSize: uint32(len(batch)), Depth: uint8(depth), GraftAddress: index}
	if err = ApplyGraft(tree, usage, rec, batch, 7); err != nil {
		t.Fatal(err)
	}

	for i, b := range batch {
		got := tree.Blocks[base*8+uint32(i)]
		if b.HasChildren() {
			if got.Child != b.Child+base {
				t.Fatalf("expected block %d to point at group %d; got %d", i, b.Child+base, got.Child)
			}
			if usage.Record(got.Child).ParentAddress != base*8+uint32(i) {
				t.Fatalf("expected usage parent of group %d to be %d", got.Child, base*8+uint32(i))
			}
		}
	}

	if err = ApplyGraft(tree, usage, rec, batch, 7); !errors.Is(err, ErrAlreadyGrafted) {
		t.Fatalf("expected ErrAlreadyGrafted; got %v", err)
	}
	rec.GraftTotalSize++
	if err = ApplyGraft(tree, usage, rec, batch, 7); !errors.Is(err, ErrBadBatch) {
		t.Fatalf("expected ErrBadBatch; got %v", err)
	}
}

func TestApplyPruneFlags(t *testing.T) {
	tree, _ := buildSphere(t, 3)
	usage := NewUsageTable(tree, 0)

	err := ApplyPrune(tree, usage, PruneRecord{Properties: IsBaseBlock | UpdateChunk, Address: 2, Chunk: 0x5555}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tree.BaseBlocks[2] != octree.UniformMask(octree.Air) {
		t.Fatalf("expected base block chunk to be updated; got %s", tree.BaseBlocks[2])
	}

	err = ApplyPrune(tree, usage, PruneRecord{Properties: IsBaseBlock | CullChild, Address: 2}, 0)
	if !errors.Is(err, ErrInviolate) {
		t.Fatalf("expected ErrInviolate; got %v", err)
	}

	index, _, _ := findLeaf(t, tree)
	err = ApplyPrune(tree, usage, PruneRecord{Properties: AlterViolability, Address: index}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if usage.Record(index / 8).IsInviolate() {
		t.Fatal("expected group to become evictable")
	}
	err = ApplyPrune(tree, usage, PruneRecord{Properties: AlterViolability | MakeInviolate, Address: index}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !usage.Record(index / 8).IsInviolate() {
		t.Fatal("expected group to become inviolate again")
	}

	err = ApplyPrune(tree, usage, PruneRecord{Properties: CullChild, Address: index, ChildAddress: 12}, 0)
	if !errors.Is(err, ErrStalePruneChild) {
		t.Fatalf("expected ErrStalePruneChild; got %v", err)
	}
}

func buildSphere(t *testing.T, maxDepth uint8) (*octree.Octree, geometry.Predicate) {
	geo := geometry.NewSphere(types.Vec3{0.5, 0.5, 0.5}, 0.3, [3]uint8{200, 100, 50})
	tree, _, err := builder.Build(geo, builder.Options{BaseDepth: 1, MaxDepth: maxDepth})
	if err != nil {
		t.Fatal(err)
	}
	return tree, geo
}

// Find a childless block that straddles the surface.
func findLeaf(t *testing.T, tree *octree.Octree) (uint32, addr.Location, uint16) {
	depth := uint16(tree.BaseDepth) + 2
	for group := uint32(0); group < tree.BaseGroupCount(); group++ {
		if !tree.HasBaseGroup(group) {
			continue
		}
		x, y, z := addr.Deinterleave(group)
		parent := addr.LocationFromCell(x, y, z, depth-1)
		for octant := uint32(0); octant < 8; octant++ {
			b := tree.Blocks[group*8+octant]
			if b.Chunk.CanHaveChildren() && !b.HasChildren() {
				return group*8 + octant, parent.Child(depth-1, octant), depth
			}
		}
	}
	t.Fatal("expected to find a leaf block that straddles the surface")
	return 0, addr.Location{}, 0
}
