package tracer

import (
	"math"

	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/types"
)

// Camera describes the view for a frame. The origin is given in tree space
// where the tree occupies the unit cube.
type Camera struct {
	Origin types.Vec3

	// Orientation in radians. Yaw turns around Y, pitch around X and roll
	// around the view axis.
	Yaw, Pitch, Roll float32

	// Field of view in radians.
	HorizontalFoV float32
	VerticalFoV   float32

	// Depth of field: blur scale and focal distance.
	DoF [2]float32

	ScreenW, ScreenH int32
}

// Get the rotation that maps +Z onto the view direction.
func (c *Camera) Orientation() types.Quat {
	return types.QuatFromEuler(c.Yaw, c.Pitch, c.Roll)
}

// Get the view direction at the screen center.
func (c *Camera) Forward() types.Vec3 {
	return c.Orientation().Rotate(types.AxisZ)
}

// Shaping tunes the per-pixel cone: the pixel footprint is scaled by
// s[0] + s[1]*r^s[2] where r is the normalized distance from the screen
// center, and s[3] is added to the cone level.
type Shaping [4]float32

// IdentityShaping leaves the cone unchanged.
var IdentityShaping = Shaping{1, 0, 1, 0}

// TraceInput holds the per-frame parameters shared by all rays.
type TraceInput struct {
	Camera Camera

	// Rays stop accumulating once they reach this opacity. 0 means fully
	// opaque.
	MaxOpacity uint8

	// Base depth of the traced tree. 0 accepts any tree.
	BaseDepth uint8

	// Frame counter stamped on child requests.
	Tick uint16

	// Max child requests left outstanding in the request queue; further
	// requests are dropped. 0 means unbounded.
	MaxChildRequests uint32

	Shaping Shaping

	// Optional shape the tree was built from. Solid nodes of the dense
	// prefix carry no surface data; when set, their colour is taken from
	// the shape at the hit point instead of DenseSolidColour.
	Geometry geometry.Predicate
}

func (in *TraceInput) shaping() Shaping {
	if in.Shaping == (Shaping{}) {
		return IdentityShaping
	}
	return in.Shaping
}

func (in *TraceInput) maxOpacity() uint8 {
	if in.MaxOpacity == 0 {
		return 255
	}
	return in.MaxOpacity
}

type ray struct {
	origin [3]float64
	dir    [3]float64

	// 1/dir and the per-axis direction sign (-1, 0 or 1). Axes with a zero
	// direction get an infinite inverse.
	invDir [3]float64
	sign   [3]int8

	// Angular size of the pixel.
	pixelFoV float64
	dof      [2]float64

	// Added to the cone level.
	coneBias float64

	// Colours solid dense prefix hits; may be nil.
	surface geometry.Predicate
}

// Set up the ray for a pixel. The camera orientation is applied after the
// pixel's own deflection from the view axis.
func (in *TraceInput) ray(px, py int32) ray {
	c := &in.Camera
	w, h := float32(max(c.ScreenW, 1)), float32(max(c.ScreenH, 1))

	dx := float32(px) + 0.5 - w*0.5
	dy := float32(py) + 0.5 - h*0.5
	deflection := types.QuatFromAxisAngle(types.AxisY, dx*c.HorizontalFoV/w).
		Mul(types.QuatFromAxisAngle(types.AxisX, dy*c.VerticalFoV/h))
	dir := c.Orientation().Mul(deflection).Rotate(types.AxisZ).Normalize()

	s := in.shaping()
	pixelFoV := float64(c.HorizontalFoV / w)
	if halfDiag := math.Hypot(float64(w), float64(h)) * 0.5; halfDiag > 0 {
		r := math.Hypot(float64(dx), float64(dy)) / halfDiag
		pixelFoV *= float64(s[0]) + float64(s[1])*math.Pow(r, float64(s[2]))
	}

	r := newRay(
		[3]float64{float64(c.Origin[0]), float64(c.Origin[1]), float64(c.Origin[2])},
		[3]float64{float64(dir[0]), float64(dir[1]), float64(dir[2])},
		pixelFoV,
	)
	r.dof = [2]float64{float64(c.DoF[0]), float64(c.DoF[1])}
	r.coneBias = float64(s[3])
	r.surface = in.Geometry
	return r
}

// Create a ray with a normalized direction.
func newRay(origin, dir [3]float64, pixelFoV float64) ray {
	r := ray{origin: origin, dir: dir, pixelFoV: pixelFoV}
	for a := 0; a < 3; a++ {
		r.invDir[a] = 1 / dir[a]
		switch {
		case dir[a] > 0:
			r.sign[a] = 1
		case dir[a] < 0:
			r.sign[a] = -1
		}
	}
	return r
}

// Get the width of the pixel cone after travelling distance m.
func (r *ray) coneSize(m float64) float64 {
	return math.Max(math.Abs(r.dof[0]*(r.dof[1]-m)), r.pixelFoV*m)
}

// Get the deepest tree level whose nodes are at least as wide as the cone
// at distance m.
func (r *ray) coneLevel(m float64) float64 {
	size := r.coneSize(m)
	if size <= 0 {
		return math.Inf(1)
	}
	return -math.Log2(size) + r.coneBias
}
