package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mini-docker/mini-docker/internal/manager"
	"github.com/mini-docker/mini-docker/internal/model"
)

var psCommand = &cli.Command{
	Name:  "ps",
	Usage: "list containers",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all", Aliases: []string{"a"}},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}},
		&cli.StringFlag{Name: "format", Value: "table", Usage: "table|json"},
	},
	Action: psAction,
}

func psAction(c *cli.Context) error {
	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	list, err := m.Ps(c.Bool("all"))
	if err != nil {
		return err
	}

	if c.Bool("quiet") {
		for _, cont := range list {
			fmt.Println(cont.ID)
		}
		return nil
	}

	if c.String("format") == "json" {
		return json.NewEncoder(os.Stdout).Encode(list)
	}

	return printPsTable(list)
}

func printPsTable(list []*model.Container) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tNET\tCOMMAND")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", shortID(c.ID), c.Name, c.Status, c.NetMode.String(), joinArgv(c.Argv))
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func joinArgv(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
