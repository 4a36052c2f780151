// Command minidocker is the CLI entry point. Before any flag parsing it
// checks os.Args[1] against the hidden re-exec subcommands the launcher
// uses internally (container init, exec stages, pod namespace pinning);
// everything else goes to the urfave/cli app built from spec.md §6's verb
// table.
package main

import (
	"fmt"
	"os"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/launcher"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case launcher.InitArg:
			launcher.RunInit(os.Args[2:])
			return
		case launcher.ExecStage1Arg:
			launcher.RunExecStage1(os.Args[2:])
			return
		case launcher.ExecStage2Arg:
			launcher.RunExecStage2(os.Args[2:])
			return
		case launcher.PodPinArg:
			launcher.RunPodPin()
			return
		}
	}

	app := buildApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "minidocker:", err)
		os.Exit(ioerr.ExitCode(err))
	}
}
