package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/manager"
)

var imagesCommand = &cli.Command{
	Name:  "images",
	Usage: "list registered images",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "format", Value: "table", Usage: "table|json"},
	},
	Action: imagesAction,
}

func imagesAction(c *cli.Context) error {
	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	list, err := m.Images()
	if err != nil {
		return err
	}

	if c.String("format") == "json" {
		return json.NewEncoder(os.Stdout).Encode(list)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME:TAG\tROOT\tREGISTERED")
	for _, img := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", img.NameTag, img.RootPath, img.RegisteredAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

var rmiCommand = &cli.Command{
	Name:      "rmi",
	Usage:     "remove a registered image",
	ArgsUsage: "<name:tag>",
	Action:    rmiAction,
}

func rmiAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return ioerr.New(ioerr.KindConfigInvalid, "rmi requires exactly one name:tag")
	}

	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	return m.Rmi(c.Args().First())
}
