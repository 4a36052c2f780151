package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/manager"
)

var stopCommand = &cli.Command{
	Name:      "stop",
	Usage:     "stop a running container",
	ArgsUsage: "<container>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "time", Aliases: []string{"t"}, Value: 10},
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}},
	},
	Action: stopAction,
}

func stopAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return ioerr.New(ioerr.KindConfigInvalid, "stop requires exactly one container")
	}
	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)
	return m.Stop(c.Args().First(), manager.StopOptions{
		TimeoutSeconds: c.Int("time"),
		Force:          c.Bool("force"),
	})
}

var rmCommand = &cli.Command{
	Name:      "rm",
	Usage:     "remove a container",
	ArgsUsage: "<container>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}},
		&cli.BoolFlag{Name: "volumes", Aliases: []string{"v"}},
	},
	Action: rmAction,
}

func rmAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return ioerr.New(ioerr.KindConfigInvalid, "rm requires exactly one container")
	}
	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)
	return m.Rm(c.Args().First(), c.Bool("force"))
}

var cleanupCommand = &cli.Command{
	Name:  "cleanup",
	Usage: "remove dead containers and unused network resources",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all"},
		&cli.BoolFlag{Name: "containers"},
		&cli.BoolFlag{Name: "images"},
		&cli.BoolFlag{Name: "volumes"},
	},
	Action: cleanupAction,
}

func cleanupAction(c *cli.Context) error {
	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)
	_, err = m.Cleanup(manager.CleanupOptions{
		All:        c.Bool("all"),
		Containers: c.Bool("containers"),
		Images:     c.Bool("images"),
		Volumes:    c.Bool("volumes"),
	})
	return err
}
