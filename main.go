package main

import (
	"fmt"
	"os"

	"github.com/labiraus/svo-tracer-sub000/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "svo-tracer"
	app.Usage = "build and render sparse voxel octrees"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "set the log level (debug, info, notice, warning, error)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "build",
			Usage: "voxelize a procedural shape into a tree",
			Description: `
Build a sparse voxel octree for a sphere or box and save it to the tree store.
The shallow levels of the tree are stored densely; blocks are expanded up to
the max depth while free addresses last.`,
			ArgsUsage: "tree_name",
			Flags: append([]cli.Flag{
				cmd.StoreFlag,
				cli.IntFlag{
					Name:  "base-depth",
					Value: 3,
					Usage: "depth of the dense prefix",
				},
				cli.IntFlag{
					Name:  "max-depth",
					Value: 8,
					Usage: "max block depth",
				},
				cli.IntFlag{
					Name:  "max-size",
					Value: 1 << 20,
					Usage: "max number of blocks",
				},
				cli.BoolFlag{
					Name:  "compress",
					Usage: "compress the saved tree with zstd",
				},
			}, cmd.ShapeFlags...),
			Action: cmd.BuildTree,
		},
		{
			Name:      "info",
			Usage:     "display statistics for a tree",
			ArgsUsage: "tree_name | path.svo | url",
			Flags:     []cli.Flag{cmd.StoreFlag},
			Action:    cmd.TreeInfo,
		},
		{
			Name:   "list",
			Usage:  "list stored trees",
			Flags:  []cli.Flag{cmd.StoreFlag},
			Action: cmd.ListTrees,
		},
		{
			Name:      "delete",
			Usage:     "remove trees from the store",
			ArgsUsage: "tree_name ...",
			Flags:     []cli.Flag{cmd.StoreFlag},
			Action:    cmd.DeleteTree,
		},
		{
			Name:  "render",
			Usage: "render a tree to a png file",
			Description: `
Trace a frame of a tree. With --graft the tree is grown between frames from
the shape flags; they must describe the shape the tree was built from. When
--shape is given, solid regions of the dense prefix are coloured from it.`,
			ArgsUsage: "tree_name | path.svo | url",
			Flags: append([]cli.Flag{
				cmd.StoreFlag,
				cli.IntFlag{
					Name:  "width",
					Value: 512,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "workers",
					Value: 2,
					Usage: "number of cpu tracers",
				},
				cli.IntFlag{
					Name:  "parallelism",
					Usage: "goroutines per tracer (0 = one per cpu)",
				},
				cli.StringFlag{
					Name:  "origin",
					Value: "0.5,0.5,-1",
					Usage: "camera position in tree space",
				},
				cli.Float64Flag{
					Name:  "yaw",
					Usage: "camera yaw in radians",
				},
				cli.Float64Flag{
					Name:  "pitch",
					Usage: "camera pitch in radians",
				},
				cli.Float64Flag{
					Name:  "roll",
					Usage: "camera roll in radians",
				},
				cli.Float64Flag{
					Name:  "fov",
					Value: 0.8,
					Usage: "horizontal field of view in radians",
				},
				cli.StringFlag{
					Name:  "dof",
					Value: "0,0",
					Usage: "depth of field as blur,focal distance",
				},
				cli.StringFlag{
					Name:  "shaping",
					Value: "1,0,1,0",
					Usage: "cone shaping a,b,c,d: pixel footprint scaled by a+b*r^c, d added to the cone level",
				},
				cli.Float64Flag{
					Name:  "ambient",
					Value: 0.25,
					Usage: "ambient light share",
				},
				cli.IntFlag{
					Name:  "max-opacity",
					Value: 255,
					Usage: "opacity at which rays stop",
				},
				cli.StringFlag{
					Name:  "scheduler",
					Value: "perfect",
					Usage: "block scheduler (naive or perfect)",
				},
				cli.IntFlag{
					Name:  "frames",
					Value: 1,
					Usage: "number of frames to render; the last one is saved",
				},
				cli.BoolFlag{
					Name:  "graft",
					Usage: "grow the tree between frames from the shape flags",
				},
				cli.IntFlag{
					Name:  "graft-max-depth",
					Value: 12,
					Usage: "max depth of grafted blocks",
				},
				cli.IntFlag{
					Name:  "graft-levels",
					Value: 1,
					Usage: "levels built per child request",
				},
				cli.IntFlag{
					Name:  "max-requests",
					Value: 4096,
					Usage: "max child requests left outstanding between frames",
				},
				cli.IntFlag{
					Name:  "stale-after",
					Value: 8,
					Usage: "discard child requests older than this many frames",
				},
				cli.IntFlag{
					Name:  "evict-after",
					Usage: "evict groups unused for this many frames (0 = never)",
				},
				cli.StringFlag{
					Name:  "metrics-addr",
					Usage: "serve prometheus metrics on this address",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
			}, cmd.ShapeFlags...),
			Action: cmd.RenderFrame,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}
