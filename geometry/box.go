package geometry

import (
	"github.com/labiraus/svo-tracer-sub000/types"
)

const planeEpsilon float32 = 1e-7

// The faces of a hexahedron expressed as indices into its vertex list. The
// vertex list follows the BoundingVolume.Corners layout.
var faceVertices = [6][4]int{
	{0, 2, 6, 4}, // -X
	{1, 3, 7, 5}, // +X
	{0, 1, 5, 4}, // -Y
	{2, 3, 7, 6}, // +Y
	{0, 1, 3, 2}, // -Z
	{4, 5, 7, 6}, // +Z
}

type face struct {
	normal types.Vec3
	colour [3]uint8

	// Projection range of the hull vertices onto the face normal. For an
	// outward normal max is the plane offset.
	min, max float32
}

// Box is a convex hexahedron defined by 8 vertices.
type Box struct {
	vertices [8]types.Vec3
	faces    [6]face
	bounds   BoundingVolume
}

// Create a box from 8 vertices laid out like BoundingVolume.Corners and a
// colour per face (-X, +X, -Y, +Y, -Z, +Z).
func NewBox(vertices [8]types.Vec3, colours [6][3]uint8) *Box {
	b := &Box{vertices: vertices}

	var centroid types.Vec3
	b.bounds.Min = vertices[0]
	b.bounds.Max = vertices[0]
	for _, v := range vertices {
		centroid = centroid.Add(v)
		b.bounds.Min = types.MinVec3(b.bounds.Min, v)
		b.bounds.Max = types.MaxVec3(b.bounds.Max, v)
	}
	centroid = centroid.Mul(1.0 / 8)

	for i, fv := range faceVertices {
		v0 := vertices[fv[0]]
		n := vertices[fv[1]].Sub(v0).Cross(vertices[fv[3]].Sub(v0)).Normalize()
		// Flip normals pointing towards the hull center.
		if n.Dot(centroid.Sub(v0)) > 0 {
			n = n.Mul(-1)
		}
		b.faces[i].normal = n
		b.faces[i].colour = colours[i]
		b.faces[i].min, b.faces[i].max = project(vertices[:], n)
	}

	return b
}

// Create an axis aligned box.
func NewAxisAlignedBox(min, max types.Vec3, colours [6][3]uint8) *Box {
	return NewBox(BoundingVolume{Min: min, Max: max}.Corners(), colours)
}

// Returns true if the volume lies entirely inside the box bounds.
func (b *Box) WithinBounds(v BoundingVolume) bool {
	return v.Inside(b.bounds)
}

// Returns true if the volume overlaps the hull interior.
func (b *Box) ContainsSolid(v BoundingVolume) bool {
	return b.overlaps(v, false)
}

// Returns true if any part of the volume lies outside the hull.
func (b *Box) ContainsAir(v BoundingVolume) bool {
	if !b.WithinBounds(v) {
		return true
	}
	corners := v.Corners()
	for i := range b.faces {
		for _, c := range corners {
			if c.Dot(b.faces[i].normal)-b.faces[i].max > planeEpsilon {
				return true
			}
		}
	}
	return false
}

// Get the normal of the faces crossing the volume.
func (b *Box) SurfaceNormal(v BoundingVolume) (pitch, yaw int16) {
	var sum types.Vec3
	for _, fi := range b.crossingFaces(v) {
		sum = sum.Add(b.faces[fi].normal)
	}
	return EncodeNormal(sum)
}

// Get the blended colour of the faces crossing the volume. Volumes inside
// the box blend all face colours.
func (b *Box) SurfaceColour(v BoundingVolume) [3]uint8 {
	crossing := b.crossingFaces(v)
	if len(crossing) > 1 && v.Size() < MinColourVolume {
		return [3]uint8{}
	}
	if len(crossing) == 0 {
		crossing = []int{0, 1, 2, 3, 4, 5}
	}

	var sum [3]uint32
	for _, fi := range crossing {
		for c := 0; c < 3; c++ {
			sum[c] += uint32(b.faces[fi].colour[c])
		}
	}
	var out [3]uint8
	for c := 0; c < 3; c++ {
		out[c] = uint8(sum[c] / uint32(len(crossing)))
	}
	return out
}

// Get the indices of the faces whose plane touches or crosses the volume
// within the hull extents.
func (b *Box) crossingFaces(v BoundingVolume) []int {
	if !b.overlaps(v, true) {
		return nil
	}

	corners := v.Corners()
	out := make([]int, 0, 3)
	for i := range b.faces {
		min, max := project(corners[:], b.faces[i].normal)
		offset := b.faces[i].max
		if min-offset <= planeEpsilon && max-offset >= -planeEpsilon {
			out = append(out, i)
		}
	}
	return out
}

// Run a separating axis test between the volume and the hull using the
// world axes and the 6 face normals. If inclusive is false, volumes that
// only touch the hull do not overlap.
func (b *Box) overlaps(v BoundingVolume, inclusive bool) bool {
	for axis := 0; axis < 3; axis++ {
		if !rangesOverlap(v.Min[axis], v.Max[axis], b.bounds.Min[axis], b.bounds.Max[axis], inclusive) {
			return false
		}
	}

	corners := v.Corners()
	for i := range b.faces {
		min, max := project(corners[:], b.faces[i].normal)
		if !rangesOverlap(min, max, b.faces[i].min, b.faces[i].max, inclusive) {
			return false
		}
	}
	return true
}

func rangesOverlap(aMin, aMax, bMin, bMax float32, inclusive bool) bool {
	if inclusive {
		return aMax >= bMin-planeEpsilon && aMin <= bMax+planeEpsilon
	}
	return aMax > bMin+planeEpsilon && aMin < bMax-planeEpsilon
}

func project(points []types.Vec3, axis types.Vec3) (min, max float32) {
	min = points[0].Dot(axis)
	max = min
	for _, p := range points[1:] {
		d := p.Dot(axis)
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}
