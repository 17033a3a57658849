package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/labiraus/svo-tracer-sub000/asset"
	"github.com/labiraus/svo-tracer-sub000/builder"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Voxelize a shape and save the tree to the store.
func BuildTree(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing tree name argument")
	}
	name := ctx.Args().First()

	geo, err := makeGeometry(ctx)
	if err != nil {
		return err
	}

	var storeOpts []asset.StoreOption
	if ctx.Bool("compress") {
		storeOpts = append(storeOpts, asset.WithCompression())
	}
	store, err := openStore(ctx, storeOpts...)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := builder.Options{
		BaseDepth: uint8(ctx.Int("base-depth")),
		MaxDepth:  uint8(ctx.Int("max-depth")),
		MaxSize:   uint32(ctx.Int("max-size")),
	}
	tree, stats, err := builder.Build(geo, opts)
	if err != nil {
		return err
	}

	if err = store.Save(name, tree); err != nil {
		return err
	}

	displayBuildStats(name, stats)
	return nil
}

func displayBuildStats(name string, stats builder.Stats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Tree", "Base nodes", "Blocks", "Groups", "Truncated", "Max depth", "Build time"})
	table.Append([]string{
		name,
		fmt.Sprintf("%d", stats.BaseNodes),
		fmt.Sprintf("%d", stats.Blocks),
		fmt.Sprintf("%d", stats.Groups),
		fmt.Sprintf("%d", stats.Truncated),
		fmt.Sprintf("%d", stats.MaxDepth),
		stats.BuildTime.String(),
	})

	table.Render()
	logger.Noticef("build statistics\n%s", buf.String())
}
