package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labiraus/svo-tracer-sub000/asset"
	"github.com/labiraus/svo-tracer-sub000/octree"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Print statistics for a stored tree or a tree file/URL.
func TreeInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing tree name or path argument")
	}

	tree, err := loadTree(ctx, ctx.Args().First())
	if err != nil {
		return err
	}

	displayTreeStats(ctx.Args().First(), tree)
	return nil
}

// List the trees in the store.
func ListTrees(ctx *cli.Context) error {
	setupLogging(ctx)

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	names, err := store.List()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Tree", "Base depth", "Blocks"})
	for _, name := range names {
		tree, err := store.Load(name)
		if err != nil {
			table.Append([]string{name, "-", err.Error()})
			continue
		}
		table.Append([]string{name, fmt.Sprintf("%d", tree.BaseDepth), fmt.Sprintf("%d", tree.BlockCount)})
	}
	table.Render()
	logger.Noticef("trees in %s\n%s", store.Dir(), buf.String())
	return nil
}

// Load a tree by store name. Arguments that look like a path or URL are
// streamed as resources instead.
func loadTree(ctx *cli.Context, nameOrPath string) (*octree.Octree, error) {
	if strings.Contains(nameOrPath, "://") || strings.HasSuffix(nameOrPath, asset.TreeExt) {
		return asset.LoadResource(context.Background(), nameOrPath)
	}

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(nameOrPath)
}

func displayTreeStats(name string, tree *octree.Octree) {
	var boundary, leaves, childless int
	for _, b := range tree.Blocks {
		if b.Chunk.CanHaveChildren() {
			boundary++
			if !b.HasChildren() {
				childless++
			}
		}
		if !b.HasChildren() {
			leaves++
		}
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Property", "Value"})
	table.AppendBulk([][]string{
		{"Base depth", fmt.Sprintf("%d", tree.BaseDepth)},
		{"Base blocks", fmt.Sprintf("%d", len(tree.BaseBlocks))},
		{"Blocks", fmt.Sprintf("%d", tree.BlockCount)},
		{"Boundary blocks", fmt.Sprintf("%d", boundary)},
		{"Leaf blocks", fmt.Sprintf("%d", leaves)},
		{"Boundary blocks without children", fmt.Sprintf("%d", childless)},
		{"Max depth", fmt.Sprintf("%d", tree.MaxDepth())},
		{"Encoded size", fmt.Sprintf("%d bytes", tree.EncodedSize())},
	})

	table.Render()
	logger.Noticef("tree %s\n%s", name, buf.String())
}
