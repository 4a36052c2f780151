package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mini-docker/mini-docker/internal/runtime"
)

func buildApp() *cli.App {
	return &cli.App{
		Name:  "minidocker",
		Usage: "a minimal container runtime",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "rootless", Usage: "force the unprivileged code path"},
		},
		Commands: []*cli.Command{
			runCommand,
			runOCICommand,
			execCommand,
			psCommand,
			stopCommand,
			rmCommand,
			logsCommand,
			inspectCommand,
			buildCommand,
			imagesCommand,
			rmiCommand,
			podCommand,
			infoCommand,
			versionCommand,
			cleanupCommand,
		},
	}
}

// runtimeFrom builds the process-wide Runtime for one CLI invocation from
// the top-level --rootless flag and the environment variables of
// spec.md §6.
func runtimeFrom(c *cli.Context) (*runtime.Runtime, error) {
	return runtime.New(c.Bool("rootless"))
}
