package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/manager"
)

var buildCommand = &cli.Command{
	Name:      "build",
	Usage:     "build an image from an Imagefile",
	ArgsUsage: "<name:tag>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Value: "Imagefile"},
		&cli.BoolFlag{Name: "no-cache"},
	},
	Action: buildAction,
}

func buildAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return ioerr.New(ioerr.KindConfigInvalid, "build requires exactly one name:tag")
	}

	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	img, err := m.Build(manager.BuildOptions{
		NameTag:       c.Args().First(),
		ImagefilePath: c.String("file"),
		NoCache:       c.Bool("no-cache"),
	})
	if err != nil {
		return err
	}
	fmt.Println(img.NameTag)
	return nil
}
