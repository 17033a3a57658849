package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labiraus/svo-tracer-sub000/asset"
	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/types"
	"github.com/urfave/cli"
)

// Flags describing the procedural shape a tree is built from.
var ShapeFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "shape",
		Value: "sphere",
		Usage: "shape to voxelize (sphere or box)",
	},
	cli.StringFlag{
		Name:  "center",
		Value: "0.5,0.5,0.5",
		Usage: "shape center in tree space",
	},
	cli.Float64Flag{
		Name:  "size",
		Value: 0.3,
		Usage: "sphere radius or half the box edge",
	},
	cli.StringFlag{
		Name:  "colour",
		Value: "200,100,50",
		Usage: "surface colour as r,g,b",
	},
	cli.StringSliceFlag{
		Name:  "face-colour",
		Usage: "box face colour as r,g,b; repeat for the -X, +X, -Y, +Y, -Z and +Z faces (missing faces use --colour)",
	},
}

// Flag selecting the tree store directory.
var StoreFlag = cli.StringFlag{
	Name:  "store",
	Value: "trees",
	Usage: "directory holding saved trees",
}

func openStore(ctx *cli.Context, opts ...asset.StoreOption) (*asset.Store, error) {
	return asset.NewStore(ctx.String("store"), opts...)
}

// Build the geometry selected by the shape flags.
func makeGeometry(ctx *cli.Context) (geometry.Predicate, error) {
	center, err := parseVec3(ctx.String("center"))
	if err != nil {
		return nil, fmt.Errorf("invalid center: %w", err)
	}
	colour, err := parseColour(ctx.String("colour"))
	if err != nil {
		return nil, err
	}
	size := float32(ctx.Float64("size"))
	if size <= 0 {
		return nil, fmt.Errorf("invalid size %f", size)
	}

	switch ctx.String("shape") {
	case "sphere":
		return geometry.NewSphere(center, size, colour), nil
	case "box":
		half := types.Vec3{size, size, size}
		var faces [6][3]uint8
		for i := range faces {
			faces[i] = colour
		}
		faceColours := ctx.StringSlice("face-colour")
		if len(faceColours) > len(faces) {
			return nil, fmt.Errorf("expected at most %d face colours; got %d", len(faces), len(faceColours))
		}
		for i, s := range faceColours {
			if faces[i], err = parseColour(s); err != nil {
				return nil, err
			}
		}
		return geometry.NewAxisAlignedBox(center.Sub(half), center.Add(half), faces), nil
	}
	return nil, fmt.Errorf("unsupported shape %q", ctx.String("shape"))
}

// Parse a comma separated triplet.
func parseVec3(s string) (types.Vec3, error) {
	var v types.Vec3
	values, err := parseFloats(s, 3)
	if err != nil {
		return v, err
	}
	copy(v[:], values)
	return v, nil
}

// Parse an r,g,b colour with components in 0..255.
func parseColour(s string) ([3]uint8, error) {
	var c [3]uint8
	values, err := parseFloats(s, 3)
	if err != nil {
		return c, fmt.Errorf("invalid colour: %w", err)
	}
	for i, v := range values {
		if v < 0 || v > 255 {
			return c, fmt.Errorf("invalid colour %q: components must be in 0..255", s)
		}
		c[i] = uint8(v)
	}
	return c, nil
}

// Parse n comma separated floats.
func parseFloats(s string, n int) ([]float32, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated values; got %q", n, s)
	}
	out := make([]float32, n)
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}
