package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/manager"
)

var execCommand = &cli.Command{
	Name:      "exec",
	Usage:     "run a command inside a running container",
	ArgsUsage: "<container> <command> [args...]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}},
		&cli.BoolFlag{Name: "tty", Aliases: []string{"t"}},
		&cli.StringSliceFlag{Name: "env", Aliases: []string{"e"}},
		&cli.StringFlag{Name: "workdir", Aliases: []string{"w"}},
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}},
	},
	Action: execAction,
}

func execAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return ioerr.New(ioerr.KindConfigInvalid, "exec requires a container and a command")
	}
	args := c.Args().Slice()

	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	return m.Exec(args[0], args[1:], manager.ExecOptions{
		Interactive: c.Bool("interactive"),
		TTY:         c.Bool("tty"),
		Env:         c.StringSlice("env"),
		Workdir:     c.String("workdir"),
		User:        c.String("user"),
	})
}
