package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/manager"
)

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "show a container's full record",
	ArgsUsage: "<container>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "format", Value: "json", Usage: "json|yaml"},
	},
	Action: inspectAction,
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return ioerr.New(ioerr.KindConfigInvalid, "inspect requires exactly one container")
	}
	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	cont, err := m.Inspect(c.Args().First())
	if err != nil {
		return err
	}

	switch c.String("format") {
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(cont)
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cont)
	}
}

var infoCommand = &cli.Command{
	Name:   "info",
	Usage:  "show host-level runtime information",
	Action: infoAction,
}

func infoAction(c *cli.Context) error {
	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	info, err := m.Info()
	if err != nil {
		return err
	}
	fmt.Printf("state root:  %s\n", info.StateRoot)
	fmt.Printf("privileged:  %v\n", info.Privileged)
	fmt.Printf("containers:  %d (%d running)\n", info.ContainerTotal, info.Running)
	fmt.Printf("images:      %d\n", info.Images)
	fmt.Printf("pods:        %d\n", info.Pods)
	return nil
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print version information",
	Action: func(c *cli.Context) error {
		fmt.Println("minidocker version", manager.Version)
		return nil
	},
}
