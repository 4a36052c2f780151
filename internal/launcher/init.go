package launcher

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/network"
	"github.com/mini-docker/mini-docker/internal/rootfs"
	"github.com/mini-docker/mini-docker/internal/runtime"
	"github.com/mini-docker/mini-docker/internal/security"
	"github.com/mini-docker/mini-docker/internal/store"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// pipeFd is where cmd.ExtraFiles lands fds 3 and 4 inside the child,
// since stdin/stdout/stderr occupy 0-2.
const (
	fdParentToChild = 3
	fdChildToParent = 4
)

// RunInit is the child-side entry point of spec.md §4.6 step 5, invoked by
// cmd/minidocker's main() when os.Args[1] == InitArg. It never returns on
// success: the final step is execve. It must not return on failure either
// -- it reports the error across the handshake pipe and calls os.Exit.
func RunInit(args []string) {
	p2c := os.NewFile(fdParentToChild, "sync-parent-to-child")
	c2p := os.NewFile(fdChildToParent, "sync-child-to-parent")

	if err := runInit(args, p2c, c2p); err != nil {
		writeFailure(c2p, err)
		os.Exit(1)
	}
	// unreachable: runInit execve's on success
}

func runInit(args []string, p2c, c2p *os.File) error {
	if len(args) != 3 {
		return ioerr.New(ioerr.KindConfigInvalid, "usage: __mini_docker_init__ <container-id> <state-root> <rootless|privileged>")
	}
	containerID, stateRoot, mode := args[0], args[1], args[2]
	rootlessRequested := mode == "rootless"

	log := logrus.NewEntry(logrus.StandardLogger())
	st := store.New(stateRoot)

	c, err := st.Load(containerID)
	if err != nil {
		return err
	}

	// Step 3: block until the parent has written uid/gid maps, enrolled
	// us in the cgroup, and attached our veth peer.
	if err := waitContinue(p2c); err != nil {
		return ioerr.Wrap(ioerr.KindLaunchHandshake, err, "waiting for parent continue signal")
	}

	rt := &runtime.Runtime{
		Log:        log,
		StateRoot:  stateRoot,
		Caps:       runtime.Detect(rootlessRequested),
		RootlessOn: rootlessRequested,
	}

	// Pod members enter the pod's pinned ipc and uts namespaces here; the
	// pinned net namespace is joined by configureChildNetwork below.
	if c.PodID != "" {
		for _, ns := range []string{"ipc", "uts"} {
			f, err := os.Open(st.NsHandlePath(c.PodID, ns))
			if err != nil {
				return ioerr.Wrap(ioerr.KindResourceKernel, err, "opening pod "+ns+" namespace handle")
			}
			err = sysnr.Setns(int(f.Fd()), 0)
			f.Close()
			if err != nil {
				return err
			}
		}
	}

	if err := sysnr.Sethostname(c.Hostname); err != nil {
		return err
	}

	if err := configureChildNetwork(c, st); err != nil {
		return err
	}

	layout := rootfs.NewLayout(st.ContainerDir(c.ID))
	builder := rootfs.New(rt, layout)
	mode2, effectiveRoot, err := builder.Build(c)
	if err != nil {
		return err
	}
	if mode2 != c.RootfsMode {
		c.RootfsMode = mode2
		_ = st.SaveConfig(c)
	}
	if rt.Caps.CanMount {
		if err := builder.Pivot(); err != nil {
			return err
		}
	} else {
		if err := sysnr.Chroot(effectiveRoot); err != nil {
			return err
		}
		if err := sysnr.Chdir("/"); err != nil {
			return err
		}
	}

	if err := chdirWorkdir(c.Workdir); err != nil {
		return err
	}

	if err := security.DropAll(); err != nil {
		return err
	}

	uid, gid, err := parseUser(c.User)
	if err != nil {
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
	if err := security.InstallSeccomp(); err != nil {
		return err
	}

	if err := writeReady(c2p); err != nil {
		return err
	}

	return execve(c)
}

func chdirWorkdir(dir string) error {
	if dir == "" {
		dir = "/"
	}
	return sysnr.Chdir(dir)
}

func parseUser(spec string) (int, int, error) {
	if spec == "" {
		return 0, 0, nil
	}
	var uid, gid int
	n, err := fmt.Sscanf(spec, "%d:%d", &uid, &gid)
	if err == nil && n == 2 {
		return uid, gid, nil
	}
	if _, err := fmt.Sscanf(spec, "%d", &uid); err != nil {
		return 0, 0, ioerr.Wrap(ioerr.KindConfigInvalid, err, "parsing --user")
	}
	return uid, uid, nil
}

func configureChildNetwork(c *model.Container, st *store.Store) error {
	switch c.NetMode.Mode {
	case "bridge":
		ip := c.IP
		if ip == "" {
			return network.ConfigureLoopbackOnly()
		}
		parsed, err := parseIP(ip)
		if err != nil {
			return err
		}
		return network.ConfigureInNamespace(parsed)
	case "pod":
		return network.JoinPodNetns(st.NsHandlePath(c.NetMode.PodID, "net"))
	default:
		return network.ConfigureLoopbackOnly()
	}
}

func execve(c *model.Container) error {
	return execveArgv(c.Argv, c.Env)
}

// execveArgv resolves argv[0] on PATH and replaces the current process
// image, used by both the initial launch and the exec helper.
func execveArgv(argv, env []string) error {
	argv0, err := resolveInPath(argv[0], env)
	if err != nil {
		return err
	}
	err = unix.Exec(argv0, argv, env)
	return ioerr.Wrap(ioerr.KindResourceKernel, err, "execve")
}

// resolveInPath finds argv[0] on the container's PATH, since unix.Exec
// (unlike exec.Command) requires a fully resolved path.
func resolveInPath(name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	path := "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			path = strings.TrimPrefix(kv, "PATH=")
		}
	}
	for _, dir := range strings.Split(path, ":") {
		candidate := dir + "/" + name
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", ioerr.New(ioerr.KindResourceKernel, "command not found: "+name)
}
