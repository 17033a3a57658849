package cmd

import (
	"github.com/labiraus/svo-tracer-sub000/log"
	"github.com/urfave/cli"
)

var logger = log.New("svo-tracer")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}

	if name := ctx.GlobalString("log-level"); name != "" {
		level, err := log.ParseLevel(name)
		if err != nil {
			logger.Warningf("ignoring log level: %s", err.Error())
			return
		}
		log.SetLevel(level)
	}
}
