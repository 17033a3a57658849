package cmd

import (
	"errors"

	"github.com/urfave/cli"
)

// Remove trees from the store.
func DeleteTree(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() == 0 {
		return errors.New("missing tree name argument")
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, name := range ctx.Args() {
		if err = store.Delete(name); err != nil {
			return err
		}
		logger.Noticef("deleted tree %s", name)
	}
	return nil
}
