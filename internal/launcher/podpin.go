package launcher

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// PodPinArg is the hidden re-exec subcommand behind `pod create`: a
// placeholder process that unshares net/ipc/uts so its namespaces can be
// bind-mounted and kept alive after it exits, per spec.md §4.8's
// "namespace pinning" design.
const PodPinArg = "__mini_docker_podpin__"

// SpawnPinner starts the placeholder process and returns its pid along with
// a function the caller must invoke once the namespace handles have been
// bind-mounted, releasing the placeholder to exit.
func SpawnPinner() (pid int, release func() error, err error) {
	p2c, err := newPipe()
	if err != nil {
		return 0, nil, err
	}

	cmd := exec.Command("/proc/self/exe", PodPinArg)
	cmd.ExtraFiles = []*os.File{p2c.child}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: sysnr.NewNet | sysnr.NewIPC | sysnr.NewUTS,
	}

	if err := cmd.Start(); err != nil {
		p2c.parent.Close()
		p2c.child.Close()
		return 0, nil, ioerr.Wrap(ioerr.KindResourceKernel, err, "starting pod namespace placeholder")
	}
	p2c.child.Close()

	release = func() error {
		defer p2c.parent.Close()
		if err := writeContinue(p2c.parent); err != nil {
			return ioerr.Wrap(ioerr.KindLaunchHandshake, err, "releasing pod namespace placeholder")
		}
		return cmd.Wait()
	}
	return cmd.Process.Pid, release, nil
}

// RunPodPin is the placeholder's entry point: it blocks on the handshake
// pipe (fd 3) until the parent has finished bind-mounting its namespace
// handles, then exits. Its own namespaces stay alive via the bind mounts.
func RunPodPin() {
	f := os.NewFile(fdParentToChild, "sync-parent-to-child")
	_ = waitContinue(f)
}
