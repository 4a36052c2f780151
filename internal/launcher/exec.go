package launcher

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/mini-docker/mini-docker/internal/cgroup"
	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/runtime"
	"github.com/mini-docker/mini-docker/internal/security"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// ExecStage1Arg and ExecStage2Arg are the two hidden re-exec subcommands
// behind `exec <container> <argv...>` (spec.md §4.8): setns only takes
// effect for PID namespaces on the *next* forked child, so joining a
// container's PID namespace needs one more fork/exec than the other
// namespace types.
const (
	ExecStage1Arg = "__mini_docker_exec1__"
	ExecStage2Arg = "__mini_docker_exec2__"
)

// nsOrder is every namespace type exec joins except pid, which must be
// entered last since it only affects processes forked afterward.
var nsOrder = []string{"mnt", "uts", "ipc", "net"}

// ExecInto builds the command for `exec <container> <argv...>`: it resolves
// the target's pid-1 namespace fds, re-execs itself to join them, and
// wires stdio straight through for attach.
func ExecInto(containerID string, targetPid int, stateRoot, workdir, user string, argv, env []string) *exec.Cmd {
	args := []string{ExecStage1Arg, containerID, fmt.Sprint(targetPid), stateRoot, workdir, user, "--"}
	args = append(args, argv...)

	cmd := exec.Command("/proc/self/exe", args...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// RunExecStage1 joins the non-PID namespaces of the target directly (they
// take effect on the calling process immediately), then re-execs as Stage2
// after additionally setns-ing into the PID namespace. It enrolls Stage2
// into the container's existing cgroup rather than creating a new one, per
// spec.md §4.8.
func RunExecStage1(args []string) {
	if err := runExecStage1(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(125)
	}
}

func runExecStage1(args []string) error {
	containerID, targetPid, workdir, user, argv, env, err := parseExecArgs(args)
	if err != nil {
		return err
	}

	for _, ns := range nsOrder {
		if err := joinNs(targetPid, ns); err != nil {
			return err
		}
	}
	if err := joinNs(targetPid, "pid"); err != nil {
		return err
	}

	stage2Args := append([]string{ExecStage2Arg, workdir, user, "--"}, argv...)
	cmd := exec.Command("/proc/self/exe", stage2Args...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "starting exec stage2")
	}

	rt := &runtime.Runtime{Log: logrus.NewEntry(logrus.StandardLogger()), Caps: runtime.Detect(false)}
	cg := cgroup.New(rt, containerID)
	if err := cg.EnterPid(cmd.Process.Pid); err != nil {
		// Best-effort: the exec'd process still runs, just outside the
		// container's resource limits.
		fmt.Fprintln(os.Stderr, "warning: could not enroll exec helper in cgroup:", err)
	}

	return cmd.Wait()
}

func joinNs(pid int, nsType string) error {
	path := fmt.Sprintf("/proc/%d/ns/%s", pid, nsType)
	f, err := os.Open(path)
	if err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "opening namespace handle "+nsType)
	}
	defer f.Close()
	return sysnr.Setns(int(f.Fd()), 0)
}

func parseExecArgs(args []string) (containerID string, pid int, workdir, user string, argv, env []string, err error) {
	if len(args) < 5 {
		err = ioerr.New(ioerr.KindConfigInvalid, "usage: exec-stage1 <container-id> <pid> <state-root> <workdir> <user> -- <argv...>")
		return
	}
	containerID = args[0]
	if _, serr := fmt.Sscanf(args[1], "%d", &pid); serr != nil {
		err = ioerr.Wrap(ioerr.KindConfigInvalid, serr, "parsing target pid")
		return
	}
	workdir = args[3]
	user = args[4]
	for i, a := range args {
		if a == "--" {
			argv = args[i+1:]
			break
		}
	}
	if len(argv) == 0 {
		err = ioerr.New(ioerr.KindConfigInvalid, "exec requires a command")
		return
	}
	env = os.Environ()
	return
}

// RunExecStage2 is the PID-namespace member: it drops capabilities,
// installs the seccomp filter, chdirs, and execve's the requested command,
// matching the security sequence of a fresh launch (spec.md §9's Open
// Question (c): exec re-drops capabilities rather than inheriting them).
func RunExecStage2(args []string) {
	if err := runExecStage2(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(125)
	}
}

func runExecStage2(args []string) error {
	if len(args) < 3 {
		return ioerr.New(ioerr.KindConfigInvalid, "usage: exec-stage2 <workdir> <user> -- <argv...>")
	}
	workdir, user := args[0], args[1]
	var argv []string
	for i, a := range args {
		if a == "--" {
			argv = args[i+1:]
			break
		}
	}
	if len(argv) == 0 {
		return ioerr.New(ioerr.KindConfigInvalid, "exec requires a command")
	}

	if err := chdirWorkdir(workdir); err != nil {
		return err
	}
	if err := dropCapsFor(user); err != nil {
		return err
	}
	return execveArgv(argv, os.Environ())
}

func dropCapsFor(user string) error {
	uid, gid, err := parseUser(user)
	if err != nil {
		return err
	}
	if err := security.DropAll(); err != nil {
		return err
	}
	if err := sysnr.Setresgid(gid, gid, gid); err != nil {
		return err
	}
	if err := sysnr.Setresuid(uid, uid, uid); err != nil {
		return err
	}
	if err := security.SetNoNewPrivs(); err != nil {
		return err
	}
	return security.InstallSeccomp()
}
