package launcher

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"

	"github.com/containerd/console"
	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/internal/cgroup"
	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/network"
	"github.com/mini-docker/mini-docker/internal/rootfs"
	"github.com/mini-docker/mini-docker/internal/runtime"
	"github.com/mini-docker/mini-docker/internal/store"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// InitArg is the hidden subcommand cmd/minidocker recognises as os.Args[1]
// to re-exec itself as the container's child process, the same re-exec
// trick the teacher's nsexec/init split relies on (Go cannot safely fork
// without exec once the runtime has started extra OS threads).
const InitArg = "__mini_docker_init__"

// Launcher orchestrates the launch pipeline of spec.md §4.6.
type Launcher struct {
	rt    *runtime.Runtime
	store *store.Store
	net   *network.Builder
}

func New(rt *runtime.Runtime, st *store.Store) *Launcher {
	return &Launcher{rt: rt, store: st, net: network.New(rt)}
}

// Launch runs the full sequence of spec.md §4.6 for a container already
// recorded in the store with status=created. On success the child has
// signalled readiness and the returned *exec.Cmd (its Process.Pid is the
// container's pid-1) lets the caller record the running state and wait for
// exit (foreground) or detach. Launch itself does not change c.Status or
// c.Pid.
func (l *Launcher) Launch(c *model.Container) (*exec.Cmd, *cgroup.Controller, console.Console, error) {
	log := l.rt.Log.WithField("container", c.ID)

	// Step 1: cgroup, rootfs layout, log file. IP allocation happens
	// in the manager (under the network lock) before Launch is called.
	cg := cgroup.New(l.rt, c.ID)
	if err := cg.Create(c.Limits); err != nil {
		return nil, nil, nil, err
	}

	layout := rootfs.NewLayout(l.store.ContainerDir(c.ID))
	if err := prepareLowerSymlink(layout, c.ImageRoot); err != nil {
		cg.Destroy()
		return nil, nil, nil, err
	}

	// logFile is held open for the container's full lifetime: wireStdio wraps
	// it in a timestampWriter that os/exec drives from a background copy
	// goroutine, so it cannot be closed the moment Launch returns the way a
	// directly dup'd *os.File could be. Launch does not close it on success;
	// the descriptor stays open until the minidocker process itself exits.
	logFile, err := os.OpenFile(l.store.LogPath(c.ID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		cg.Destroy()
		return nil, nil, nil, ioerr.Wrap(ioerr.KindResourceKernel, err, "opening container log")
	}

	p2c, err := newPipe()
	if err != nil {
		logFile.Close()
		cg.Destroy()
		return nil, nil, nil, err
	}
	c2p, err := newPipe()
	if err != nil {
		logFile.Close()
		cg.Destroy()
		return nil, nil, nil, err
	}

	cmd := exec.Command("/proc/self/exe", InitArg, c.ID, l.store.Root(), boolArg(c.Rootless))
	cmd.ExtraFiles = []*os.File{p2c.child, c2p.child}
	cmd.SysProcAttr = &syscall.SysProcAttr{Cloneflags: cloneFlags(c, l.rt)}

	var pty console.Console
	if c.TTY {
		pty, err = AttachTTY(cmd, logFile)
		if err != nil {
			cg.Destroy()
			return nil, nil, nil, err
		}
	} else {
		wireStdio(cmd, logFile, c)
	}

	if err := cmd.Start(); err != nil {
		p2c.parent.Close()
		c2p.parent.Close()
		if pty != nil {
			pty.Close()
		}
		logFile.Close()
		cg.Destroy()
		return nil, nil, nil, ioerr.Wrap(ioerr.KindResourceKernel, err, "starting container init process")
	}
	p2c.child.Close()
	c2p.child.Close()

	pid := cmd.Process.Pid
	log = log.WithField("pid", pid)

	cleanupOnErr := func(err error) (*exec.Cmd, *cgroup.Controller, console.Console, error) {
		p2c.parent.Close()
		c2p.parent.Close()
		sysnr.Kill(pid, unix.SIGKILL)
		cmd.Wait()
		cg.Destroy()
		rootfs.New(l.rt, layout).Teardown()
		return nil, nil, nil, err
	}

	// Step 3/4: (a) uid/gid maps, (b) cgroup enrollment, (c) veth attach.
	if l.rt.RootlessOn && c.Rootless {
		if err := writeUserNSMappings(pid); err != nil {
			return cleanupOnErr(err)
		}
	}
	if err := cg.EnterPid(pid); err != nil {
		return cleanupOnErr(err)
	}
	var veth *network.Veth
	if c.NetMode.Mode == "bridge" && l.rt.Caps.CanCreateVeth {
		ip, parseErr := parseIP(c.IP)
		if parseErr != nil {
			return cleanupOnErr(parseErr)
		}
		veth, err = l.net.CreateVeth(pid, ip, c.ID[:8])
		if err != nil {
			return cleanupOnErr(err)
		}
	}

	if err := writeContinue(p2c.parent); err != nil {
		return cleanupOnErr(ioerr.Wrap(ioerr.KindLaunchHandshake, err, "signalling child to continue"))
	}

	if err := readOutcome(c2p.parent); err != nil {
		if veth != nil {
			l.net.RemoveVeth(veth.HostName)
		}
		return cleanupOnErr(err)
	}

	log.Info("container started")
	return cmd, cg, pty, nil
}

func boolArg(b bool) string {
	if b {
		return "rootless"
	}
	return "privileged"
}

func parseIP(s string) (net.IP, error) {
	if s == "" {
		return nil, ioerr.New(ioerr.KindNetBridgeUnavailable, "no IP allocated for bridge-mode container")
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, ioerr.New(ioerr.KindNetBridgeUnavailable, "invalid allocated IP: "+s)
	}
	return ip, nil
}

func cloneFlags(c *model.Container, rt *runtime.Runtime) uintptr {
	flags := uintptr(sysnr.NewPID | sysnr.NewUTS | sysnr.NewNS | sysnr.NewIPC)
	if c.PodID != "" {
		// Pod members join pinned net/ipc/uts namespaces via setns in
		// the child instead of creating fresh ones.
		flags &^= uintptr(sysnr.NewIPC | sysnr.NewUTS)
	}
	if c.NetMode.Mode != "pod" {
		flags |= uintptr(sysnr.NewNet)
	}
	if rt.RootlessOn && c.Rootless {
		flags |= uintptr(sysnr.NewUser)
	}
	return flags
}

func prepareLowerSymlink(layout rootfs.Layout, imageRoot string) error {
	if _, err := os.Lstat(layout.Lower); err == nil {
		return nil
	}
	if err := os.MkdirAll(layout.Root, 0755); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "creating rootfs directory")
	}
	if err := os.Symlink(imageRoot, layout.Lower); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "symlinking lower to image root")
	}
	return nil
}

// writeUserNSMappings performs the parent-side half of spec.md §4.6 step
// 3(a): a single-entry identity map of the invoking user, the standard
// unprivileged-user-namespace idiom (equivalent to running `newuidmap pid
// 0 $(id -u) 1`).
func writeUserNSMappings(pid int) error {
	uid := os.Getuid()
	gid := os.Getgid()

	if err := os.WriteFile(fmt.Sprintf("/proc/%d/setgroups", pid), []byte("deny"), 0644); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "writing setgroups")
	}
	if err := os.WriteFile(fmt.Sprintf("/proc/%d/uid_map", pid), []byte(fmt.Sprintf("0 %d 1", uid)), 0644); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "writing uid_map")
	}
	if err := os.WriteFile(fmt.Sprintf("/proc/%d/gid_map", pid), []byte(fmt.Sprintf("0 %d 1", gid)), 0644); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "writing gid_map")
	}
	return nil
}

// Cleanup tears down a launched container's cgroup, rootfs, and network
// resources. It is idempotent, per spec.md §4.6.
func (l *Launcher) Cleanup(c *model.Container) error {
	log := l.rt.Log.WithField("container", c.ID)

	cg := cgroup.New(l.rt, c.ID)
	if err := cg.Destroy(); err != nil {
		log.WithError(err).Warn("destroying cgroup")
	}

	layout := rootfs.NewLayout(l.store.ContainerDir(c.ID))
	if err := rootfs.New(l.rt, layout).Teardown(); err != nil {
		log.WithError(err).Warn("tearing down rootfs")
	}

	if c.NetMode.Mode == "bridge" {
		l.net.RemoveVeth(vethHostName(c.ID))
		if err := l.store.ReleaseIP(c.ID); err != nil {
			log.WithError(err).Warn("releasing IP lease")
		}
	}
	return nil
}

func vethHostName(containerID string) string {
	if len(containerID) >= 8 {
		return "veth" + containerID[:8]
	}
	return "veth" + containerID
}
