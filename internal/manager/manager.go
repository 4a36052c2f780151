// Package manager implements the container manager verbs of spec.md §4.8:
// thin orchestration over the launcher, state store, cgroup, rootfs,
// network, security, and image collaborators. cmd/minidocker's CLI layer
// parses flags into the option structs here and calls straight through.
package manager

import (
	"os"
	"time"

	"github.com/containerd/console"
	"github.com/sirupsen/logrus"

	"github.com/mini-docker/mini-docker/internal/cgroup"
	"github.com/mini-docker/mini-docker/internal/idgen"
	"github.com/mini-docker/mini-docker/internal/image"
	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/launcher"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/network"
	"github.com/mini-docker/mini-docker/internal/runtime"
	"github.com/mini-docker/mini-docker/internal/store"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// Manager is the single entry point cmd/minidocker constructs per
// invocation, wrapping every collaborator in terms of one Runtime.
type Manager struct {
	rt       *runtime.Runtime
	store    *store.Store
	launcher *launcher.Launcher
	net      *network.Builder
	images   *image.Registry
	log      *logrus.Entry
}

func New(rt *runtime.Runtime) *Manager {
	st := store.New(rt.StateRoot)
	return &Manager{
		rt:       rt,
		store:    st,
		launcher: launcher.New(rt, st),
		net:      network.New(rt),
		images:   image.NewRegistry(rt.StateRoot),
		log:      rt.Log.WithField("component", "manager"),
	}
}

// RunOptions collects the `run` verb's flags (spec.md §6).
type RunOptions struct {
	ImageRoot string
	Argv      []string

	Name     string
	Hostname string

	MemoryBytes *int64
	CPUPercent  *int
	PidsMax     *int64

	Net      string // "none", "bridge"
	PodID    string
	Rootless bool

	Detach       bool
	TTY          bool
	Interactive  bool
	RemoveOnExit bool

	Env     []string
	Mounts  []model.Mount
	Workdir string
	User    string

	NoOverlay bool
}

// Run implements `run`: validates the name, allocates an id (and IP, under
// the network lock, if bridge networking applies), persists the container
// record, and launches it. For a foreground (non-detach) run, Run itself
// waits for the exit and returns the final record with its exit code;
// detached callers get control back once pid-1 is running.
func (m *Manager) Run(opts RunOptions) (*model.Container, error) {
	if opts.Name != "" {
		taken, err := m.store.NameTaken(opts.Name)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ioerr.New(ioerr.KindStateConflict, "name already in use: "+opts.Name)
		}
	}
	if len(opts.Argv) == 0 {
		return nil, ioerr.New(ioerr.KindConfigInvalid, "run requires a command")
	}

	id, err := idgen.New()
	if err != nil {
		return nil, err
	}

	imageRoot := opts.ImageRoot
	if img, rerr := m.images.Resolve(opts.ImageRoot); rerr == nil {
		imageRoot = img.RootPath
	}

	rootfsMode := model.RootfsOverlay
	if opts.NoOverlay {
		rootfsMode = model.RootfsBind
	}

	netMode := model.NetMode{Mode: opts.Net}
	if opts.PodID != "" {
		netMode = model.NetMode{Mode: "pod", PodID: opts.PodID}
	}
	if netMode.Mode == "" {
		netMode.Mode = "none"
	}

	c := &model.Container{
		ID:          id,
		Name:        opts.Name,
		ImageRoot:   imageRoot,
		Argv:        opts.Argv,
		Env:         opts.Env,
		Workdir:     opts.Workdir,
		User:        opts.User,
		Hostname:    opts.Hostname,
		Mounts:      opts.Mounts,
		NetMode:     netMode,
		RootfsMode:  rootfsMode,
		Rootless:    opts.Rootless,
		TTY:         opts.TTY,
		Interactive: opts.Interactive,
		PodID:      opts.PodID,
		CreatedAt:  time.Now(),
		Limits: model.Limits{
			MemoryBytes: opts.MemoryBytes,
			CPUPercent:  opts.CPUPercent,
			PidsMax:     opts.PidsMax,
		},
	}
	if c.Hostname == "" {
		c.Hostname = id[:8]
	}

	if netMode.Mode == "bridge" {
		lock, err := m.store.LockNetwork()
		if err != nil {
			return nil, err
		}
		defer lock.Unlock()

		if err := m.net.EnsureBridge(); err != nil {
			return nil, err
		}
		ip, err := m.store.AllocateIP(id)
		if err != nil {
			return nil, err
		}
		c.IP = ip.String()
	}

	if err := m.store.CreateContainer(c); err != nil {
		return nil, err
	}

	cmd, cg, pty, err := m.launcher.Launch(c)
	if err != nil {
		c.Status = model.StatusDead
		_ = m.store.SaveState(c)
		if netMode.Mode == "bridge" {
			_ = m.store.ReleaseIP(id)
		}
		return nil, err
	}

	c.Status = model.StatusRunning
	c.Pid = cmd.Process.Pid
	started := time.Now()
	c.StartedAt = &started
	if ticks, terr := sysnr.ReadProcStartTime(c.Pid); terr == nil {
		c.StartTimeTicks = ticks
	}
	if err := m.store.SaveState(c); err != nil {
		return nil, err
	}

	if opts.Detach {
		go m.reap(c, cmd, pty, cg)
		return c, nil
	}

	m.waitForeground(c, cmd, pty, cg)
	return c, nil
}

// waiter is the subset of *exec.Cmd this package needs, so tests can stub it.
type waiter interface{ Wait() error }

// drainTTY copies bytes between the host terminal and a container's PTY
// master until the master closes, tee-ing output into the container's log.
// It is a no-op when pty is nil (the container was not run with --tty).
func (m *Manager) drainTTY(c *model.Container, pty console.Console) {
	if pty == nil {
		return
	}
	defer pty.Close()
	logFile, err := os.OpenFile(m.store.LogPath(c.ID), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		m.log.WithError(err).Warn("reopening container log for tty copy")
		return
	}
	defer logFile.Close()
	launcher.CopyTTY(pty, logFile)
}

// waitForeground blocks for a foreground run, recording the final state and
// tearing down resources before returning.
func (m *Manager) waitForeground(c *model.Container, cmd waiter, pty console.Console, cg *cgroup.Controller) {
	if pty != nil {
		m.drainTTY(c, pty)
	}
	err, oomKilled := m.waitWithOOM(cmd, cg)
	finishContainer(c, err, oomKilled)
	if serr := m.store.SaveState(c); serr != nil {
		m.log.WithError(serr).Warn("saving final container state")
	}
	if err := m.launcher.Cleanup(c); err != nil {
		m.log.WithError(err).Warn("tearing down container resources")
	}
}

func (m *Manager) reap(c *model.Container, cmd waiter, pty console.Console, cg *cgroup.Controller) {
	if pty != nil {
		go m.drainTTY(c, pty)
	}
	err, oomKilled := m.waitWithOOM(cmd, cg)
	finishContainer(c, err, oomKilled)
	_ = m.store.SaveState(c)
	_ = m.launcher.Cleanup(c)
}

func finishContainer(c *model.Container, waitErr error, oomKilled bool) {
	finished := time.Now()
	c.FinishedAt = &finished
	c.Status = model.StatusExited
	c.ExitCode = exitCodeFromWait(waitErr)
	c.OOMKilled = oomKilled
}

// Inspect loads a container's full record by name or id prefix.
func (m *Manager) Inspect(ref string) (*model.Container, error) {
	id, err := m.store.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return m.store.Load(id)
}

// Ps lists containers, optionally including dead/exited ones (the -a flag).
func (m *Manager) Ps(all bool) ([]*model.Container, error) {
	list, err := m.store.List()
	if err != nil {
		return nil, err
	}
	if all {
		return list, nil
	}
	out := list[:0]
	for _, c := range list {
		if c.Status == model.StatusRunning {
			out = append(out, c)
		}
	}
	return out, nil
}

// LogPath exposes a container's log file location for the `logs` verb's CLI
// layer to tail/follow.
func (m *Manager) LogPath(ref string) (string, error) {
	id, err := m.store.Resolve(ref)
	if err != nil {
		return "", err
	}
	return m.store.LogPath(id), nil
}

// Info reports the host-level summary the `info` verb prints.
type Info struct {
	StateRoot      string
	Privileged     bool
	ContainerTotal int
	Running        int
	Images         int
	Pods           int
}

func (m *Manager) Info() (*Info, error) {
	list, err := m.store.List()
	if err != nil {
		return nil, err
	}
	running := 0
	for _, c := range list {
		if c.Status == model.StatusRunning {
			running++
		}
	}
	imgs, err := m.images.List()
	if err != nil {
		return nil, err
	}
	pods, err := m.store.ListPods()
	if err != nil {
		return nil, err
	}
	return &Info{
		StateRoot:      m.rt.StateRoot,
		Privileged:     m.rt.Caps.Privileged,
		ContainerTotal: len(list),
		Running:        running,
		Images:         len(imgs),
		Pods:           len(pods),
	}, nil
}

// Version is the static build identity the `version` verb prints.
const Version = "0.1.0"
