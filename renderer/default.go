package renderer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/labiraus/svo-tracer-sub000/geometry"
	"github.com/labiraus/svo-tracer-sub000/log"
	"github.com/labiraus/svo-tracer-sub000/octree"
	"github.com/labiraus/svo-tracer-sub000/residency"
	"github.com/labiraus/svo-tracer-sub000/tracer"
)

// Default ambient share when Options.Ambient is 0.
const defaultAmbient float32 = 0.25

var logger = log.New("renderer")

type defaultRenderer struct {
	sync.Mutex

	tree      *octree.Octree
	scheduler tracer.BlockScheduler
	options   Options

	tracers          []tracer.Tracer
	blockAssignments []uint32

	// Per-pixel trace results shared by all tracers; each tracer only
	// writes its own rows.
	results []tracer.Result
	frame   *image.RGBA

	requests *residency.Queue[residency.ChildRequest]
	usage    *residency.UsageTable
	grafter  *residency.Grafter

	// Frame counter stamped on child requests.
	tick uint16

	// Tick of the last completed frame. Grafting happens between frames, so
	// requests are judged against the frame that made them.
	frameTick uint16

	// Completion channels shared by every frame. Blocks still in flight
	// after an interrupted frame are drained before the next one starts.
	doneChan chan uint32
	errChan  chan error
	inflight int

	stats FrameStats
}

// Create a renderer that traces tree on a pool of CPU tracers and splits
// frames between them with the given scheduler.
func NewDefault(tree *octree.Octree, scheduler tracer.BlockScheduler, opts Options) (Renderer, error) {
	if tree == nil {
		return nil, ErrTreeNotDefined
	}
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	if opts.FrameW == 0 || opts.FrameH == 0 {
		return nil, fmt.Errorf("renderer: invalid frame size %dx%d", opts.FrameW, opts.FrameH)
	}
	if opts.Ambient <= 0 {
		opts.Ambient = defaultAmbient
	}
	opts.Ambient = float32(math.Min(1, float64(opts.Ambient)))

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	r := &defaultRenderer{
		tree:      tree,
		scheduler: scheduler,
		options:   opts,
		results:   make([]tracer.Result, opts.FrameW*opts.FrameH),
		frame:     image.NewRGBA(image.Rect(0, 0, int(opts.FrameW), int(opts.FrameH))),
		requests:  residency.NewQueue[residency.ChildRequest](opts.MaxChildRequests),
		usage:     residency.NewUsageTable(tree, 0),
		doneChan:  make(chan uint32, workers),
		errChan:   make(chan error, workers),
	}
	if opts.Geometry != nil {
		r.grafter = residency.NewGrafter(opts.Geometry, r.requests, opts.Graft)
	}

	for i := 0; i < workers; i++ {
		tr := tracer.NewCPUTracer(fmt.Sprintf("cpu-%d", i), opts.Parallelism)
		if err := tr.Setup(tree, opts.FrameW, opts.FrameH, r.results); err != nil {
			logger.Warningf("skipping tracer %s due to setup error: %s", tr.Id(), err.Error())
			tr.Close()
			continue
		}
		r.tracers = append(r.tracers, tr)
	}
	if len(r.tracers) == 0 {
		return nil, ErrNoTracers
	}

	logger.Infof("attached %d tracers for %dx%d frames", len(r.tracers), opts.FrameW, opts.FrameH)
	return r, nil
}

// Shutdown renderer and any attached tracer.
func (r *defaultRenderer) Close() {
	r.Lock()
	defer r.Unlock()

	r.drainInflight()
	for _, tr := range r.tracers {
		tr.Close()
	}
	r.tracers = nil
}

// Get render statistics.
func (r *defaultRenderer) Stats() FrameStats {
	r.Lock()
	defer r.Unlock()
	return r.stats
}

// Render a frame.
func (r *defaultRenderer) Render(ctx context.Context, input tracer.TraceInput) (*image.RGBA, error) {
	r.Lock()
	defer r.Unlock()

	if len(r.tracers) == 0 {
		return nil, ErrNoTracers
	}
	r.drainInflight()
	if ctx.Err() != nil {
		return nil, ErrInterrupted
	}

	start := time.Now()
	input.Tick = r.tick
	input.BaseDepth = r.tree.BaseDepth
	input.Camera.ScreenW = int32(r.options.FrameW)
	input.Camera.ScreenH = int32(r.options.FrameH)
	if input.Geometry == nil {
		input.Geometry = r.options.Geometry
	}

	r.blockAssignments = r.scheduler.Schedule(r.tracers, r.options.FrameH)
	var blockY uint32
	for idx, tr := range r.tracers {
		blockH := r.blockAssignments[idx]
		if blockH == 0 {
			continue
		}
		r.inflight++
		tr.Enqueue(tracer.BlockRequest{
			BlockY:   blockY,
			BlockH:   blockH,
			Input:    input,
			Requests: r.requests,
			DoneChan: r.doneChan,
			ErrChan:  r.errChan,
		})
		blockY += blockH
	}

	// Wait for all tracers to finish
	var err error
	for r.inflight > 0 && err == nil {
		select {
		case <-r.doneChan:
			r.inflight--
		case err = <-r.errChan:
			r.inflight--
		case <-ctx.Done():
			return nil, ErrInterrupted
		}
	}
	if err != nil {
		return nil, err
	}

	r.shade(&input.Camera)
	r.touchResolved()
	r.updateStats(time.Since(start))
	r.frameTick = r.tick
	r.tick++

	return r.frame, nil
}

// Block until blocks enqueued by an interrupted frame complete.
func (r *defaultRenderer) drainInflight() {
	for ; r.inflight > 0; r.inflight-- {
		select {
		case <-r.doneChan:
		case err := <-r.errChan:
			logger.Warningf("discarding error from interrupted frame: %s", err.Error())
		}
	}
}

// Convert the trace results into frame pixels. Surfaces are lit by the
// ambient term plus a headlight along the view direction; rays that missed
// the tree keep the background colour.
func (r *defaultRenderer) shade(camera *tracer.Camera) {
	toViewer := camera.Forward().Mul(-1)
	ambient := r.options.Ambient

	for y := 0; y < int(r.options.FrameH); y++ {
		for x := 0; x < int(r.options.FrameW); x++ {
			res := &r.results[y*int(r.options.FrameW)+x]
			if res.Missed() {
				r.frame.SetRGBA(x, y, color.RGBA{res.Colour[0], res.Colour[1], res.Colour[2], 255})
				continue
			}

			n := geometry.DecodeNormal(res.Block.NormalPitch, res.Block.NormalYaw)
			light := ambient + (1-ambient)*float32(math.Max(0, float64(n.Dot(toViewer))))
			r.frame.SetRGBA(x, y, color.RGBA{
				scale(res.Colour[0], light),
				scale(res.Colour[1], light),
				scale(res.Colour[2], light),
				255,
			})
		}
	}
}

func scale(c uint8, s float32) uint8 {
	return uint8(math.Min(255, math.Round(float64(c)*float64(s))))
}

// Stamp the groups of all resolved blocks as used in this frame.
func (r *defaultRenderer) touchResolved() {
	for i := range r.results {
		if addr := r.results[i].Address; addr != octree.NoChildren {
			r.usage.Touch(addr/8, r.tick)
		}
	}
}

func (r *defaultRenderer) updateStats(elapsed time.Duration) {
	r.stats = FrameStats{
		Tracers:         make([]TracerStat, len(r.tracers)),
		Tick:            r.tick,
		PendingRequests: r.requests.Len(),
		DroppedRequests: r.requests.Dropped(),
		RenderTime:      elapsed,
	}
	for idx, tr := range r.tracers {
		trStats := tr.Stats()
		r.stats.Tracers[idx] = TracerStat{
			Id:           tr.Id(),
			BlockH:       r.blockAssignments[idx],
			FramePercent: 100 * float32(r.blockAssignments[idx]) / float32(r.options.FrameH),
			RenderTime:   trStats.RenderTime,
			Rays:         trStats.Rays,
			Misses:       trStats.Misses,
			Requests:     trStats.Requests,
		}
	}
}

// Run the grafter between frames.
func (r *defaultRenderer) Graft() (residency.GraftStats, error) {
	r.Lock()
	defer r.Unlock()

	if r.grafter == nil {
		return residency.GraftStats{}, ErrNoGrafter
	}
	r.drainInflight()
	return r.grafter.Run(r.tree, r.usage, r.frameTick)
}
