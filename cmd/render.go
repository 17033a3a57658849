package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/labiraus/svo-tracer-sub000/renderer"
	"github.com/labiraus/svo-tracer-sub000/residency"
	"github.com/labiraus/svo-tracer-sub000/tracer"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
)

// Render one or more frames of a tree.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing tree name or path argument")
	}

	tree, err := loadTree(ctx, ctx.Args().First())
	if err != nil {
		return err
	}

	origin, err := parseVec3(ctx.String("origin"))
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}

	dof, err := parseFloats(ctx.String("dof"), 2)
	if err != nil {
		return fmt.Errorf("invalid dof: %w", err)
	}
	shaping, err := parseFloats(ctx.String("shaping"), 4)
	if err != nil {
		return fmt.Errorf("invalid shaping: %w", err)
	}

	opts := renderer.Options{
		FrameW:      uint32(ctx.Int("width")),
		FrameH:      uint32(ctx.Int("height")),
		Workers:     ctx.Int("workers"),
		Parallelism: ctx.Int("parallelism"),
		Ambient:     float32(ctx.Float64("ambient")),
		Graft: residency.GraftOptions{
			MaxDepth:   uint8(ctx.Int("graft-max-depth")),
			Levels:     uint8(ctx.Int("graft-levels")),
			StaleAfter: uint16(ctx.Int("stale-after")),
			EvictAfter: uint16(ctx.Int("evict-after")),
		},
	}
	// The shape also colours solid nodes of the dense prefix
	if ctx.Bool("graft") || ctx.IsSet("shape") {
		if opts.Geometry, err = makeGeometry(ctx); err != nil {
			return err
		}
	}

	var scheduler tracer.BlockScheduler
	switch ctx.String("scheduler") {
	case "naive":
		scheduler = tracer.NaiveScheduler()
	case "perfect":
		scheduler = tracer.PerfectScheduler()
	default:
		return fmt.Errorf("unsupported scheduler %q", ctx.String("scheduler"))
	}

	if addr := ctx.String("metrics-addr"); addr != "" {
		serveMetrics(addr)
	}

	r, err := renderer.NewDefault(tree, scheduler, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	fov := float32(ctx.Float64("fov"))
	input := tracer.TraceInput{
		Camera: tracer.Camera{
			Origin:        origin,
			Yaw:           float32(ctx.Float64("yaw")),
			Pitch:         float32(ctx.Float64("pitch")),
			Roll:          float32(ctx.Float64("roll")),
			HorizontalFoV: fov,
			VerticalFoV:   fov * float32(opts.FrameH) / float32(opts.FrameW),
			DoF:           [2]float32{dof[0], dof[1]},
		},
		MaxOpacity:       uint8(ctx.Int("max-opacity")),
		MaxChildRequests: uint32(ctx.Int("max-requests")),
		Shaping:          tracer.Shaping{shaping[0], shaping[1], shaping[2], shaping[3]},
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	frames := ctx.Int("frames")
	if frames < 1 {
		frames = 1
	}
	for frame := 0; frame < frames; frame++ {
		img, err := r.Render(sigCtx, input)
		if err != nil {
			return err
		}

		displayFrameStats(r.Stats())
		if frame == frames-1 {
			if err = renderer.SaveFrame(ctx.String("out"), img); err != nil {
				return err
			}
			logger.Noticef("wrote frame to %s", ctx.String("out"))
			break
		}

		if ctx.Bool("graft") {
			stats, err := r.Graft()
			if err != nil {
				return err
			}
			logger.Infof("grafted %d subtrees (%d blocks), pruned %d groups", stats.Grafted, stats.Blocks, stats.Pruned)
		}
	}

	return nil
}

// Expose the Prometheus registry over http.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server: %s", err.Error())
		}
	}()
	logger.Infof("serving metrics on %s/metrics", strings.TrimSuffix(addr, "/"))
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Tracer", "Block height", "% of frame", "Rays", "Misses", "Child requests", "Render time"})
	for _, stat := range stats.Tracers {
		table.Append([]string{
			stat.Id,
			fmt.Sprintf("%d", stat.BlockH),
			fmt.Sprintf("%02.1f %%", stat.FramePercent),
			fmt.Sprintf("%d", stat.Rays),
			fmt.Sprintf("%d", stat.Misses),
			fmt.Sprintf("%d", stat.Requests),
			stat.RenderTime.String(),
		})
	}
	table.SetFooter([]string{
		fmt.Sprintf("tick %d", stats.Tick),
		"", "", "", "",
		fmt.Sprintf("%d queued / %d dropped", stats.PendingRequests, stats.DroppedRequests),
		stats.RenderTime.String(),
	})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}
