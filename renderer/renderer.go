package renderer

import (
	"context"
	"image"

	"github.com/labiraus/svo-tracer-sub000/residency"
	"github.com/labiraus/svo-tracer-sub000/tracer"
)

type Renderer interface {
	// Render a frame as seen through the camera of the given input.
	Render(ctx context.Context, input tracer.TraceInput) (*image.RGBA, error)

	// Service the child requests of past frames and evict unused groups.
	// Must not be called while a frame is rendering.
	Graft() (residency.GraftStats, error)

	// Shutdown renderer and any attached tracer.
	Close()

	// Get render statistics.
	Stats() FrameStats
}
