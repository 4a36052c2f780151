package main

import (
	"strings"

	"github.com/docker/go-units"
	"github.com/urfave/cli/v2"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/manager"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/ocispec"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "run a command in a new container",
	ArgsUsage: "<rootfs-or-image:tag> <command> [args...]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}},
		&cli.StringFlag{Name: "hostname", Aliases: []string{"H"}},
		&cli.StringFlag{Name: "memory", Aliases: []string{"m"}, Usage: "e.g. 256M"},
		&cli.IntFlag{Name: "cpu", Aliases: []string{"c"}, Usage: "percent of one core"},
		&cli.Int64Flag{Name: "pids"},
		&cli.StringFlag{Name: "net", Value: "none", Usage: "none|bridge"},
		&cli.BoolFlag{Name: "rootless"},
		&cli.BoolFlag{Name: "detach", Aliases: []string{"d"}},
		&cli.BoolFlag{Name: "tty", Aliases: []string{"t"}},
		&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}},
		&cli.BoolFlag{Name: "rm"},
		&cli.StringSliceFlag{Name: "env", Aliases: []string{"e"}},
		&cli.StringSliceFlag{Name: "volume", Aliases: []string{"v"}},
		&cli.StringFlag{Name: "workdir", Aliases: []string{"w"}},
		&cli.StringFlag{Name: "user", Aliases: []string{"u"}},
		&cli.BoolFlag{Name: "no-overlay"},
		&cli.StringFlag{Name: "pod"},
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return ioerr.New(ioerr.KindConfigInvalid, "run requires a rootfs and a command")
	}
	args := c.Args().Slice()

	mounts, err := parseMounts(c.StringSlice("volume"))
	if err != nil {
		return err
	}

	opts := manager.RunOptions{
		ImageRoot:    args[0],
		Argv:         args[1:],
		Name:         c.String("name"),
		Hostname:     c.String("hostname"),
		Net:          c.String("net"),
		PodID:        c.String("pod"),
		Rootless:     c.Bool("rootless"),
		Detach:       c.Bool("detach"),
		TTY:          c.Bool("tty"),
		Interactive:  c.Bool("interactive"),
		RemoveOnExit: c.Bool("rm"),
		Env:          c.StringSlice("env"),
		Mounts:       mounts,
		Workdir:      c.String("workdir"),
		User:         c.String("user"),
		NoOverlay:    c.Bool("no-overlay"),
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

	cont, err := m.Run(opts)
	if err != nil {
		return err
	}

	if opts.Detach {
		rt.Log.Info(cont.ID)
		return nil
	}

	if opts.RemoveOnExit {
		_ = m.Rm(cont.ID, true)
	}
	return ioerr.UserExited(cont.ExitCode)
}

// parseMounts parses the -v HOST:CONTAINER[:ro] syntax of spec.md §6.
func parseMounts(specs []string) ([]model.Mount, error) {
	var out []model.Mount
	for _, s := range specs {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, ioerr.New(ioerr.KindConfigInvalid, "invalid --volume spec: "+s)
		}
		m := model.Mount{HostPath: parts[0], ContainerPath: parts[1]}
		if len(parts) == 3 {
			m.ReadOnly = parts[2] == "ro"
		}
		out = append(out, m)
	}
	return out, nil
}

var runOCICommand = &cli.Command{
	Name:      "run-oci",
	Usage:     "run an OCI bundle",
	ArgsUsage: "<bundle-path>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "detach", Aliases: []string{"d"}},
		&cli.BoolFlag{Name: "rootless"},
	},
	Action: runOCIAction,
}

func runOCIAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return ioerr.New(ioerr.KindConfigInvalid, "run-oci requires exactly one bundle path")
	}
	cont, err := ocispec.LoadBundle(c.Args().First())
	if err != nil {
		return err
	}

	rt, err := runtimeFrom(c)
	if err != nil {
		return err
	}
	m := manager.New(rt)

	cont.Rootless = c.Bool("rootless")
	result, err := m.Run(manager.RunOptions{
		ImageRoot:   cont.ImageRoot,
		Argv:        cont.Argv,
		Env:         cont.Env,
		Workdir:     cont.Workdir,
		User:        cont.User,
		Hostname:    cont.Hostname,
		Mounts:      cont.Mounts,
		Net:         cont.NetMode.Mode,
		Rootless:    cont.Rootless,
		Detach:      c.Bool("detach"),
		MemoryBytes: cont.Limits.MemoryBytes,
		CPUPercent:  cont.Limits.CPUPercent,
		PidsMax:     cont.Limits.PidsMax,
		NoOverlay:   cont.RootfsMode == model.RootfsBind,
	})
	if err != nil {
		return err
	}
	if c.Bool("detach") {
		rt.Log.Info(result.ID)
		return nil
	}
	return ioerr.UserExited(result.ExitCode)
}
