package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/urfave/cli/v2"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/manager"
)

var podCommand = &cli.Command{
	Name:  "pod",
	Usage: "manage pods, groups of containers sharing net/ipc/uts namespaces",
	Subcommands: []*cli.Command{
		podCreateCommand,
		podAddCommand,
		podLsCommand,
		podInspectCommand,
		podRmCommand,
	},
}

var podCreateCommand = &cli.Command{
	Name:      "create",
	Usage:     "create a new pod",
	ArgsUsage: "[name]",
	Action: func(c *cli.Context) error {
		rt, err := runtimeFrom(c)
		if err != nil {
			return err
		}
		m := manager.New(rt)

		p, err := m.PodCreate(c.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(p.ID)
		return nil
	},
}

var podAddCommand = &cli.Command{
	Name:      "add",
	Usage:     "add a container to a pod",
	ArgsUsage: "<pod> <rootfs> <command> [args...]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}},
		&cli.StringFlag{Name: "memory", Aliases: []string{"m"}, Usage: "e.g. 256M"},
		&cli.IntFlag{Name: "cpu", Aliases: []string{"c"}},
		&cli.Int64Flag{Name: "pids"},
		&cli.BoolFlag{Name: "rootless"},
		&cli.BoolFlag{Name: "detach", Aliases: []string{"d"}},
		&cli.BoolFlag{Name: "tty", Aliases: []string{"t"}},
		&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}},
		&cli.StringSliceFlag{Name: "env", Aliases: []string{"e"}},
		&cli.StringSliceFlag{Name: "volume", Aliases: []string{"v"}},
		&cli.StringFlag{Name: "workdir", Aliases: []string{"w"}},
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}},
		&cli.BoolFlag{Name: "no-overlay"},
	},
	Action: podAddAction,
}

func podAddAction(c *cli.Context) error {
	if c.NArg() < 3 {
		return ioerr.New(ioerr.KindConfigInvalid, "pod add requires a pod, a rootfs and a command")
	}
	args := c.Args().Slice()

	mounts, err := parseMounts(c.StringSlice("volume"))
	if err != nil {
		return err
	}

	opts := manager.RunOptions{
		ImageRoot:   args[1],
		Argv:        args[2:],
		Name:        c.String("name"),
		Rootless:    c.Bool("rootless"),
		Detach:      c.Bool("detach"),
		TTY:         c.Bool("tty"),
		Interactive: c.Bool("interactive"),
		Env:         c.StringSlice("env"),
		Mounts:      mounts,
		Workdir:     c.String("workdir"),
		User:        c.String("user"),
		NoOverlay:   c.Bool("no-overlay"),
	}
	if mem := c.String("memory"); mem != "" {
		bytes, err := units.RAMInBytes(mem)
		if err != nil {
			return ioerr.Wrap(ioerr.KindConfigInvalid, err, "parsing --memory")
		}
		opts.MemoryBytes = &bytes
	}
	if c.IsSet("cpu") {
		pct := c.Int("cpu")
		opts.CPUPercent = &pct
	}
	if c.IsSet("pids") {
		n := c.Int64("pids")
		opts.PidsMax = &n
	}

	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	cont, err := m.PodAdd(args[0], opts)
	if err != nil {
		return err
	}
	if opts.Detach {
		rt.Log.Info(cont.ID)
		return nil
	}
	return ioerr.UserExited(cont.ExitCode)
}

var podLsCommand = &cli.Command{
	Name:  "ls",
	Usage: "list pods",
	Action: func(c *cli.Context) error {
		rt, err := runtimeFrom(c)
		if err != nil {
			return err
		}
		m := manager.New(rt)

		pods, err := m.PodLs()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMEMBERS")
		for _, p := range pods {
			fmt.Fprintf(w, "%s\t%s\t%d\n", shortID(p.ID), p.Name, len(p.Members))
		}
		return w.Flush()
	},
}

var podInspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "show a pod's full record",
	ArgsUsage: "<pod>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return ioerr.New(ioerr.KindConfigInvalid, "pod inspect requires exactly one pod")
		}
		rt, err := runtimeFrom(c)
		if err != nil {
			return err
		}
		m := manager.New(rt)

		p, err := m.PodInspect(c.Args().First())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var podRmCommand = &cli.Command{
	Name:      "rm",
	Usage:     "remove a pod",
	ArgsUsage: "<pod>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return ioerr.New(ioerr.KindConfigInvalid, "pod rm requires exactly one pod")
		}
		rt, err := runtimeFrom(c)
		if err != nil {
			return err
		}
		m := manager.New(rt)

		return m.PodRm(c.Args().First(), c.Bool("force"))
	},
}
