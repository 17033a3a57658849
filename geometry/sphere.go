package geometry

import (
	"github.com/labiraus/svo-tracer-sub000/types"
)

// Sphere is a solid ball with a single colour.
type Sphere struct {
	Center types.Vec3
	Radius float32
	Colour [3]uint8
}

// Create a new sphere.
func NewSphere(center types.Vec3, radius float32, colour [3]uint8) *Sphere {
	return &Sphere{
		Center: center,
		Radius: radius,
		Colour: colour,
	}
}

func (s *Sphere) bounds() BoundingVolume {
	r := types.Vec3{s.Radius, s.Radius, s.Radius}
	return BoundingVolume{Min: s.Center.Sub(r), Max: s.Center.Add(r)}
}

// Returns true if the volume lies entirely inside the sphere's bounding box.
func (s *Sphere) WithinBounds(v BoundingVolume) bool {
	return v.Inside(s.bounds())
}

// Returns true if the closest point of the volume is inside the sphere.
func (s *Sphere) ContainsSolid(v BoundingVolume) bool {
	var dist2 float32
	for axis := 0; axis < 3; axis++ {
		var d float32
		if s.Center[axis] < v.Min[axis] {
			d = v.Min[axis] - s.Center[axis]
		} else if s.Center[axis] > v.Max[axis] {
			d = s.Center[axis] - v.Max[axis]
		}
		dist2 += d * d
	}
	return dist2 < s.Radius*s.Radius
}

// Returns true if the farthest corner of the volume is outside the sphere.
func (s *Sphere) ContainsAir(v BoundingVolume) bool {
	if !s.WithinBounds(v) {
		return true
	}
	var dist2 float32
	for axis := 0; axis < 3; axis++ {
		d := v.Max[axis] - s.Center[axis]
		if dl := s.Center[axis] - v.Min[axis]; dl > d {
			d = dl
		}
		dist2 += d * d
	}
	return dist2 > s.Radius*s.Radius
}

// Get the outward normal at the volume center scaled by the radius.
func (s *Sphere) SurfaceNormal(v BoundingVolume) (pitch, yaw int16) {
	if s.Radius <= 0 {
		return 0, 0
	}
	return EncodeNormal(v.Center().Sub(s.Center).Mul(1 / s.Radius))
}

// Get the sphere colour.
func (s *Sphere) SurfaceColour(_ BoundingVolume) [3]uint8 {
	return s.Colour
}
