// Package geometry provides the solid predicates that the tree builder
// voxelizes.
package geometry

import (
	"math"

	"github.com/labiraus/svo-tracer-sub000/octree/addr"
	"github.com/labiraus/svo-tracer-sub000/types"
)

// Volumes whose side is below this threshold and which are crossed by more
// than one face are coloured black to darken edges.
const MinColourVolume float32 = 0.0005

// BoundingVolume is an axis aligned box.
type BoundingVolume struct {
	Min types.Vec3
	Max types.Vec3
}

// Derive the volume of the depth node that contains loc.
func VolumeFromLocation(loc addr.Location, depth uint16) BoundingVolume {
	var v BoundingVolume
	for axis := 0; axis < 3; axis++ {
		min, _, max := addr.CoordinateRange(loc.Axis(axis), depth)
		v.Min[axis] = min
		v.Max[axis] = max
	}
	return v
}

// Get the box center.
func (v BoundingVolume) Center() types.Vec3 {
	return v.Min.Add(v.Max).Mul(0.5)
}

// Get the length of the longest box side.
func (v BoundingVolume) Size() float32 {
	side := v.Max.Sub(v.Min)
	return float32(math.Max(float64(side[0]), math.Max(float64(side[1]), float64(side[2]))))
}

// Get one of the 8 sub-boxes obtained by splitting the volume at its
// midpoints. Bit 0 of the octant selects the upper X half, bit 1 the upper Y
// half and bit 2 the upper Z half.
func (v BoundingVolume) Octant(octant uint32) BoundingVolume {
	mid := v.Center()
	out := v
	for axis := 0; axis < 3; axis++ {
		if octant&(1<<uint(axis)) != 0 {
			out.Min[axis] = mid[axis]
		} else {
			out.Max[axis] = mid[axis]
		}
	}
	return out
}

// Get the 8 box corners. Corner i uses the same bit layout as Octant.
func (v BoundingVolume) Corners() [8]types.Vec3 {
	var out [8]types.Vec3
	for i := range out {
		for axis := 0; axis < 3; axis++ {
			if i&(1<<uint(axis)) != 0 {
				out[i][axis] = v.Max[axis]
			} else {
				out[i][axis] = v.Min[axis]
			}
		}
	}
	return out
}

// Returns true if v lies entirely inside other.
func (v BoundingVolume) Inside(other BoundingVolume) bool {
	for axis := 0; axis < 3; axis++ {
		if v.Min[axis] < other.Min[axis] || v.Max[axis] > other.Max[axis] {
			return false
		}
	}
	return true
}

// Predicate is implemented by shapes that can be voxelized.
type Predicate interface {
	// Returns true if the volume lies entirely inside the shape's
	// containing box.
	WithinBounds(v BoundingVolume) bool

	// Returns true if the volume contains any solid material.
	ContainsSolid(v BoundingVolume) bool

	// Returns true if the volume contains any empty space.
	ContainsAir(v BoundingVolume) bool

	// Get the outward surface normal for the volume encoded as a
	// (pitch, yaw) pair. Volumes that are not crossed by the surface
	// return (0, 0).
	SurfaceNormal(v BoundingVolume) (pitch, yaw int16)

	// Get the surface colour for the volume.
	SurfaceColour(v BoundingVolume) [3]uint8
}

// Encode a normal vector as a pair of signed 16-bit angles. Y is up and +Z
// is forward: pitch is the elevation and yaw the heading measured from -Z.
// Zero length vectors encode as (0, 0).
func EncodeNormal(n types.Vec3) (pitch, yaw int16) {
	n = n.Normalize()
	if n.IsZero() {
		return 0, 0
	}

	up := math.Max(-1, math.Min(1, float64(n[1])))
	pitch = int16(math.Round(32767 * math.Asin(up) / (math.Pi / 2)))
	yaw = int16(math.Round(32767 * math.Atan2(float64(n[0]), float64(0-n[2])) / math.Pi))
	return pitch, yaw
}

// Decode a (pitch, yaw) pair produced by EncodeNormal back to a unit vector.
func DecodeNormal(pitch, yaw int16) types.Vec3 {
	p := float64(pitch) / 32767 * (math.Pi / 2)
	y := float64(yaw) / 32767 * math.Pi
	cosP := math.Cos(p)
	return types.Vec3{
		float32(cosP * math.Sin(y)),
		float32(math.Sin(p)),
		float32(-cosP * math.Cos(y)),
	}
}
