// Package cgroup implements the cgroup-v2 controller of spec.md §4.2: it
// creates and populates a per-container cgroup subtree, writes resource
// limits, moves processes in, and deletes the subtree on shutdown. It
// mirrors the teacher's p.manager.Apply/Set/Destroy calls in
// libcontainer/process_linux.go but talks to the unified hierarchy
// directly (cgroupfs writes) rather than through runc's cgroups.Manager
// interface, since this spec targets cgroup v2 only.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/sirupsen/logrus"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/runtime"
)

const subtreeControlFile = "cgroup.subtree_control"

// Controller owns the cgroup-v2 leaf directory for one container, at
// <cgroup_root>/mini-docker/<id>.
type Controller struct {
	rt   *runtime.Runtime
	log  *logrus.Entry
	path string
}

// New returns a Controller for the container's leaf directory without
// touching the filesystem; Create enables +cpu +memory +pids in the
// parent's subtree_control and makes the directory.
func New(rt *runtime.Runtime, id string) *Controller {
	parent := filepath.Join(rt.Caps.CgroupRoot, "mini-docker")
	return &Controller{
		rt:   rt,
		log:  rt.Log.WithField("component", "cgroup").WithField("id", id),
		path: filepath.Join(parent, id),
	}
}

// Path returns the cgroup leaf directory.
func (c *Controller) Path() string { return c.path }

// Create makes the leaf directory, enabling the required controllers on
// every ancestor first. In rootless mode, a delegation failure is logged
// as a warning and setup proceeds best-effort per spec.md §4.2/§7.
func (c *Controller) Create(limits model.Limits) error {
	if !c.rt.Caps.Privileged {
		if ok, err := DelegationAvailable(); err != nil {
			c.log.WithError(err).Debug("systemd delegation check unavailable")
		} else if !ok {
			c.log.Warn("systemd cgroup delegation not available; proceeding with best-effort subtree_control writes")
		}
	}

	parent := filepath.Dir(c.path)
	if err := c.enableControllers(parent); err != nil {
		if c.rt.Caps.Privileged {
			return ioerr.Wrap(ioerr.KindResourceCgroup, err, "enabling cgroup controllers")
		}
		c.log.WithError(err).Warn("cgroup delegation unavailable; proceeding best-effort")
	}

	if err := os.MkdirAll(c.path, 0755); err != nil {
		return c.cgroupErr(err, "creating cgroup directory", limits)
	}

	if err := c.applyLimits(limits); err != nil {
		return c.cgroupErr(err, "applying cgroup limits", limits)
	}

	return nil
}

// cgroupErr downgrades a cgroup failure to a warning in rootless mode
// unless the caller explicitly asked for a limit (spec.md §7).
func (c *Controller) cgroupErr(err error, msg string, limits model.Limits) error {
	explicit := limits.MemoryBytes != nil || limits.CPUPercent != nil || limits.PidsMax != nil
	if c.rt.Caps.Privileged || explicit {
		return ioerr.Wrap(ioerr.KindResourceCgroup, err, msg)
	}
	c.log.WithError(err).Warn(msg + " (ignored, rootless, no explicit limit requested)")
	return nil
}

// enableControllers walks from the cgroup root down to parent, writing
// "+cpu +memory +pids" into each ancestor's cgroup.subtree_control.
func (c *Controller) enableControllers(parent string) error {
	rel, err := filepath.Rel(c.rt.Caps.CgroupRoot, parent)
	if err != nil {
		return err
	}
	cur := c.rt.Caps.CgroupRoot
	segments := strings.Split(rel, string(filepath.Separator))
	for _, seg := range segments {
		if seg == "." || seg == "" {
			continue
		}
		cur = filepath.Join(cur, seg)
		if err := os.MkdirAll(cur, 0755); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(cur, subtreeControlFile), "+cpu +memory +pids"); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return err
	}
	return writeFile(filepath.Join(parent, subtreeControlFile), "+cpu +memory +pids")
}

func (c *Controller) applyLimits(limits model.Limits) error {
	mem := "max"
	if limits.MemoryBytes != nil {
		mem = strconv.FormatInt(*limits.MemoryBytes, 10)
	}
	if err := writeFile(filepath.Join(c.path, "memory.max"), mem); err != nil {
		return fmt.Errorf("memory.max: %w", err)
	}

	cpu := "max 100000"
	if limits.CPUPercent != nil {
		if *limits.CPUPercent >= 100 {
			cpu = "max 100000"
		} else {
			quota := *limits.CPUPercent * 1000
			cpu = fmt.Sprintf("%d 100000", quota)
		}
	}
	if err := writeFile(filepath.Join(c.path, "cpu.max"), cpu); err != nil {
		return fmt.Errorf("cpu.max: %w", err)
	}

	pids := "max"
	if limits.PidsMax != nil {
		pids = strconv.FormatInt(*limits.PidsMax, 10)
	}
	if err := writeFile(filepath.Join(c.path, "pids.max"), pids); err != nil {
		return fmt.Errorf("pids.max: %w", err)
	}

	return nil
}

// EnterPid writes pid into cgroup.procs, enrolling the process.
func (c *Controller) EnterPid(pid int) error {
	return writeFile(filepath.Join(c.path, "cgroup.procs"), strconv.Itoa(pid))
}

// Destroy kills every member, waits up to five seconds for cgroup.procs to
// empty, then rmdirs the leaf. It is idempotent: a missing directory is not
// an error.
func (c *Controller) Destroy() error {
	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		return nil
	}

	if err := c.killAll(); err != nil {
		c.log.WithError(err).Warn("killing cgroup members during teardown")
	}
	procsFile := filepath.Join(c.path, "cgroup.procs")
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); {
		procs, err := os.ReadFile(procsFile)
		if err != nil || strings.TrimSpace(string(procs)) == "" {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return ioerr.Wrap(ioerr.KindResourceCgroup, err, "removing cgroup directory")
	}
	return nil
}

// killAll prefers cgroup.kill (cgroup v2, kernel 5.14+); falls back to
// iterating cgroup.procs and SIGKILLing each pid, as spec.md §4.2 requires.
func (c *Controller) killAll() error {
	killFile := filepath.Join(c.path, "cgroup.kill")
	if _, err := os.Stat(killFile); err == nil {
		return writeFile(killFile, "1")
	}

	procs, err := os.ReadFile(filepath.Join(c.path, "cgroup.procs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, line := range strings.Fields(string(procs)) {
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		_ = killPid(pid)
	}
	return nil
}

// DelegationAvailable asks systemd (via D-Bus) whether the running user
// session has cgroup delegation enabled, supplementing the plain
// subtree_control probe with the same signal the teacher's sysbox-mgr
// daemon checks before handing out a user-delegated cgroup root.
func DelegationAvailable() (bool, error) {
	conn, err := dbus.NewSystemdConnectionContext(dbusCtx())
	if err != nil {
		return false, err
	}
	defer conn.Close()

	prop, err := conn.GetManagerProperty("Version")
	if err != nil {
		return false, err
	}
	return prop != "", nil
}

func writeFile(path, data string) error {
	return os.WriteFile(path, []byte(data), 0644)
}
