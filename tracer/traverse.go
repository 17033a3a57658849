package tracer

import (
	"math"
	"math/bits"

	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/octree"
	"github.com/labiraus/svo-tracer-sub000/octree/addr"
	"github.com/labiraus/svo-tracer-sub000/residency"
	"github.com/labiraus/svo-tracer-sub000/types"
)

const (
	// 2^64 as a float.
	fixedScale float64 = 1 << 64

	// Upper bound on walk steps per ray. A well formed tree never gets
	// close; it only guards against corrupt child pointers.
	maxSteps = 1 << 24
)

// Colour of solid nodes in the dense prefix, which carry no surface data.
var DenseSolidColour = [3]uint8{192, 192, 192}

// Result is the outcome of tracing a single ray.
type Result struct {
	// The last block the ray resolved against or the background block.
	Block octree.Block

	// Index of Block in the block array; NoChildren for the background
	// and dense prefix nodes.
	Address uint32

	// Accumulated colour and opacity.
	Colour  [3]uint8
	Opacity uint8

	// Depth of the node the ray resolved at.
	Depth uint8

	// Distance marched from the camera origin.
	Distance float32

	// Number of walk steps.
	Steps int

	// Set when the ray needed children that are not resident.
	Request *residency.ChildRequest
}

// Returns true if the ray left the tree without hitting anything.
func (r *Result) Missed() bool {
	return r.Address == octree.NoChildren && r.Block.Chunk == 0
}

// Trace the ray for pixel (px, py). The result only depends on the tree,
// the input and the pixel coordinates.
func Trace(tree *octree.Octree, input *TraceInput, px, py int32) Result {
	r := input.ray(px, py)
	return traceRay(tree, &r, input.maxOpacity(), input.Tick)
}

// Walk transitions.
type action uint8

const (
	actContinue action = iota
	actResolve
	actRequest
	actExit
)

// workingData is the traversal state of a single ray.
type workingData struct {
	tree      *octree.Octree
	baseDepth uint16
	rootMask  octree.ChunkMask

	r   *ray
	pos addr.Location

	// Depth of the node whose children are being walked.
	depth uint16

	// Block index of the container at each block depth.
	blocks [addr.AxisBits]uint32

	// Distance marched so far.
	m float64

	coneLevel float64
	coneValid bool

	// The axis crossed by the last step or the entry face; -1 if the ray
	// started inside the tree.
	lastAxis int

	steps int

	// Last resolved node.
	hit      octree.Block
	hitAddr  uint32
	hitDepth uint16

	request *residency.ChildRequest
	tick    uint16

	colour  [3]float64
	opacity float64
}

func traceRay(tree *octree.Octree, r *ray, maxOpacity uint8, tick uint16) Result {
	w := &workingData{
		tree:      tree,
		baseDepth: uint16(tree.BaseDepth),
		r:         r,
		tick:      tick,
		lastAxis:  -1,
	}
	for octant := uint32(0); octant < 8 && octant < uint32(len(tree.BaseBlocks)); octant++ {
		w.rootMask = w.rootMask.WithPair(octant, tree.BaseBlocks[octant].Fold())
	}

	if !w.enter() {
		return w.result()
	}

	for {
		switch w.step() {
		case actContinue:
			continue
		case actExit:
			return w.result()
		case actRequest, actResolve:
			w.accumulate()
			if w.opacityByte() >= maxOpacity {
				return w.result()
			}

			// Move past the resolved node and keep going.
			w.depth = w.hitDepth - 1
			if w.advance() == actExit {
				return w.result()
			}
		}
	}
}

// Find where the ray enters the unit cube. Each axis the origin lies
// outside of yields a candidate entry parameter; the largest one wins. The
// entry is rejected if the ray points away from the cube or the entry point
// lies further than the cone radius outside of it.
func (w *workingData) enter() bool {
	o, d := w.r.origin, w.r.dir

	t, axis := 0.0, -1
	for a := 0; a < 3; a++ {
		var ta float64
		switch {
		case o[a] < 0:
			if w.r.sign[a] <= 0 {
				return false
			}
			ta = -o[a] * w.r.invDir[a]
		case o[a] > 1:
			if w.r.sign[a] >= 0 {
				return false
			}
			ta = (1 - o[a]) * w.r.invDir[a]
		default:
			continue
		}
		if ta > t {
			t, axis = ta, a
		}
	}

	cone := w.r.coneSize(t)
	var p [3]float64
	for a := 0; a < 3; a++ {
		p[a] = o[a] + t*d[a]
		if p[a] < -cone || p[a] > 1+cone {
			return false
		}
		p[a] = math.Min(1, math.Max(0, p[a]))
	}

	w.pos = addr.LocationFromFloat(float32(p[0]), float32(p[1]), float32(p[2]))
	if axis >= 0 {
		// Snap the entry axis onto the face it crossed.
		if w.r.sign[axis] > 0 {
			w.pos.SetAxis(axis, 0)
		} else {
			w.pos.SetAxis(axis, math.MaxUint64)
		}
	}
	w.m = t
	w.lastAxis = axis
	return true
}

// Perform one walk transition.
func (w *workingData) step() action {
	w.steps++
	if w.steps > maxSteps {
		return actExit
	}

	octant := w.pos.ChildIndex(w.depth)
	switch w.containerMask().Pair(octant) {
	case octree.Boundary:
		return w.descend(octant)
	case octree.Solid:
		w.resolveSolid(octant)
		return actResolve
	default:
		return w.advance()
	}
}

// Get the chunk mask of the current container. The root and the level
// right below the dense prefix are not stored; their masks are folded from
// the nodes beneath them.
func (w *workingData) containerMask() octree.ChunkMask {
	switch {
	case w.depth == 0:
		return w.rootMask
	case w.depth <= w.baseDepth:
		return w.tree.BaseBlocks[octree.BaseIndex(w.depth, w.pos)]
	case w.depth == w.baseDepth+1:
		var mask octree.ChunkMask
		blocks, _ := w.tree.Group(w.baseGroup())
		for octant, b := range blocks {
			mask = mask.WithPair(uint32(octant), b.Chunk.Fold())
		}
		return mask
	default:
		return w.tree.Blocks[w.blocks[w.depth]].Chunk
	}
}

// Get the group holding the blocks below the current depth BaseDepth+1 node.
func (w *workingData) baseGroup() uint32 {
	return w.pos.Prefix(w.baseDepth + 1)
}

// Handle a child that straddles a surface: descend into it, resolve at the
// current level if the cone is too wide for more detail, or request it if
// it is not resident.
func (w *workingData) descend(octant uint32) action {
	child := w.depth + 1
	switch {
	case w.depth < w.baseDepth:
		w.depth = child
		return actContinue
	case w.depth == w.baseDepth:
		if _, ok := w.tree.Group(w.pos.Prefix(child)); !ok {
			w.setHit(w.denseSolid(), octree.NoChildren, child)
			return actResolve
		}
		w.depth = child
		return actContinue
	case w.depth == w.baseDepth+1:
		index := w.baseGroup()*8 + octant
		if float64(child) > w.cone() {
			w.setHit(w.tree.Blocks[index], index, child)
			return actResolve
		}
		w.blocks[child] = index
		w.depth = child
		return actContinue
	}

	// The container is a block. Step back up while it is finer than the
	// cone; the parent of the shallowest block level is not a block.
	if float64(w.depth) > w.cone() && w.depth > w.baseDepth+2 {
		w.depth--
		return actContinue
	}

	container := w.blocks[w.depth]
	b := w.tree.Blocks[container]
	if float64(child) > w.cone() {
		w.setHit(b, container, w.depth)
		return actResolve
	}

	children, ok := w.tree.Group(b.Child)
	if !ok {
		w.setHit(b, container, w.depth)
		if !b.HasChildren() && w.request == nil {
			w.request = &residency.ChildRequest{
				Address:  container,
				Tick:     w.tick,
				Depth:    uint8(w.depth),
				Location: w.pos.Truncate(w.depth),
			}
			return actRequest
		}
		return actResolve
	}

	if child >= addr.AxisBits-1 {
		w.setHit(children[octant], b.Child*8+octant, child)
		return actResolve
	}
	w.blocks[child] = b.Child*8 + octant
	w.depth = child
	return actContinue
}

// Resolve a child that is completely solid.
func (w *workingData) resolveSolid(octant uint32) {
	child := w.depth + 1
	switch {
	case w.depth <= w.baseDepth:
		w.setHit(w.denseSolid(), octree.NoChildren, child)
	case w.depth == w.baseDepth+1:
		index := w.baseGroup()*8 + octant
		w.setHit(w.tree.Blocks[index], index, child)
	default:
		container := w.blocks[w.depth]
		b := w.tree.Blocks[container]
		if children, ok := w.tree.Group(b.Child); ok {
			w.setHit(children[octant], b.Child*8+octant, child)
			return
		}
		w.setHit(b, container, w.depth)
	}
}

// Build a block for a solid dense node. The normal faces back along the
// axis the ray crossed to reach it. The colour comes from the ray's surface
// at the hit point if it has one.
func (w *workingData) denseSolid() octree.Block {
	b := octree.Block{
		Child:   octree.NoChildren,
		Chunk:   octree.UniformMask(octree.Solid),
		Colour:  DenseSolidColour,
		Opacity: 255,
	}
	if w.lastAxis >= 0 {
		var n types.Vec3
		n[w.lastAxis] = float32(-w.r.sign[w.lastAxis])
		b.NormalPitch, b.NormalYaw = geometry.EncodeNormal(n)
	}
	if w.r.surface != nil {
		x, y, z := w.pos.Float()
		p := types.Vec3{x, y, z}
		b.Colour = w.r.surface.SurfaceColour(geometry.BoundingVolume{Min: p, Max: p})
	}
	return b
}

func (w *workingData) setHit(b octree.Block, address uint32, depth uint16) {
	w.hit = b
	w.hitAddr = address
	w.hitDepth = depth
}

// Get the cone level at the current distance.
func (w *workingData) cone() float64 {
	if !w.coneValid {
		w.coneLevel = w.r.coneLevel(w.m)
		w.coneValid = true
	}
	return w.coneLevel
}

// Move to the next child of the current container along the ray. The axis
// with the nearest cell boundary is stepped exactly onto the neighbouring
// cell; ties go to x, then y, then z. The other axes advance in proportion
// and stay inside the cell. The container depth then becomes the deepest
// level shared by the old and new positions.
func (w *workingData) advance() action {
	size := uint64(1) << (addr.AxisBits - 1 - uint(w.depth))

	best, bestT := -1, math.Inf(1)
	var bestTarget uint64
	var bestExits bool
	var lower, upper [3]uint64
	for a := 0; a < 3; a++ {
		p := w.pos.Axis(a)
		lower[a] = p &^ (size - 1)
		upper[a] = lower[a] + (size - 1)

		if w.r.sign[a] == 0 {
			continue
		}

		var target uint64
		var delta float64
		exits := false
		if w.r.sign[a] > 0 {
			if upper[a] == math.MaxUint64 {
				exits = true
				delta = float64(upper[a]-p) + 1
			} else {
				target = upper[a] + 1
				delta = float64(target - p)
			}
		} else {
			if lower[a] == 0 {
				exits = true
				delta = float64(p) + 1
			} else {
				target = lower[a] - 1
				delta = float64(p - target)
			}
		}

		if t := delta * math.Abs(w.r.invDir[a]) / fixedScale; t < bestT {
			best, bestT, bestTarget, bestExits = a, t, target, exits
		}
	}

	if best < 0 || bestExits {
		return actExit
	}

	for a := 0; a < 3; a++ {
		if a == best || w.r.sign[a] == 0 {
			continue
		}
		p := w.pos.Axis(a)
		moved := bestT * math.Abs(w.r.dir[a]) * fixedScale
		if w.r.sign[a] > 0 {
			if room := upper[a] - p; moved >= float64(room) {
				p = upper[a]
			} else {
				p += uint64(math.Round(moved))
			}
		} else {
			if room := p - lower[a]; moved >= float64(room) {
				p = lower[a]
			} else {
				p -= uint64(math.Round(moved))
			}
		}
		w.pos.SetAxis(a, p)
	}

	old := w.pos.Axis(best)
	w.pos.SetAxis(best, bestTarget)
	if shared := uint16(bits.LeadingZeros64(old ^ bestTarget)); shared < w.depth {
		w.depth = shared
	}

	w.m += bestT
	w.coneValid = false
	w.lastAxis = best
	return actContinue
}

// Blend the hit block behind what has been accumulated so far.
func (w *workingData) accumulate() {
	alpha := float64(w.hit.Opacity) / 255 * (1 - w.opacity)
	for c := 0; c < 3; c++ {
		w.colour[c] += float64(w.hit.Colour[c]) * alpha
	}
	w.opacity += alpha
}

func (w *workingData) opacityByte() uint8 {
	return uint8(math.Round(math.Min(1, w.opacity) * 255))
}

func (w *workingData) result() Result {
	res := Result{
		Distance: float32(w.m),
		Steps:    w.steps,
		Request:  w.request,
	}

	if w.opacity == 0 {
		res.Block = octree.Background()
		res.Address = octree.NoChildren
		res.Colour = octree.BackgroundColour
		res.Opacity = 255
		return res
	}

	res.Block = w.hit
	res.Address = w.hitAddr
	res.Depth = uint8(w.hitDepth)
	res.Opacity = w.opacityByte()

	// Whatever is left shows the background.
	rest := 1 - math.Min(1, w.opacity)
	for c := 0; c < 3; c++ {
		v := w.colour[c] + float64(octree.BackgroundColour[c])*rest
		res.Colour[c] = uint8(math.Min(255, math.Round(v)))
	}
	return res
}
