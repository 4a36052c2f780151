package manager

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/internal/cgroup"
	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// waitWithOOM waits for cmd to exit while watching cg's memory.events for an
// OOM kill, so the exit record can tell a kernel-initiated kill apart from a
// plain exit even though both reach Wait() as the same SIGKILL signal. A nil
// cg (launch failed before a cgroup existed) falls back to a plain Wait().
func (m *Manager) waitWithOOM(cmd waiter, cg *cgroup.Controller) (error, bool) {
	if cg == nil {
		return cmd.Wait(), false
	}

	stop := make(chan struct{})
	defer close(stop)

	events, err := cg.WatchOOM(stop)
	if err != nil {
		m.log.WithError(err).Debug("watching cgroup for OOM events")
		return cmd.Wait(), false
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	killed := false
	for {
		select {
		case err := <-done:
			return err, killed
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			killed = true
		}
	}
}

// exitCodeFromWait translates an *exec.Cmd.Wait() error into the exit code
// table of spec.md §7: a clean exit keeps its code, a signal death maps to
// 128+signal.
func exitCodeFromWait(err error) int {
	if err == nil {
		return 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode()
	}
	if status.Signaled() {
		return 128 + int(status.Signal())
	}
	return status.ExitStatus()
}

// StopOptions collects the `stop` verb's flags.
type StopOptions struct {
	TimeoutSeconds int
	Force          bool
}

// Stop implements `stop <c> [--time T] [--force]`: SIGTERM, poll for exit up
// to the timeout, escalate to SIGKILL on timeout or --force.
func (m *Manager) Stop(ref string, opts StopOptions) error {
	id, err := m.store.Resolve(ref)
	if err != nil {
		return err
	}
	lock, err := m.store.LockContainer(id)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	c, err := m.store.Load(id)
	if err != nil {
		return err
	}
	if c.Status != model.StatusRunning {
		return nil
	}

	timeout := opts.TimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}

	if opts.Force {
		return m.killAndReconcile(c, unix.SIGKILL)
	}

	if err := sysnr.Kill(c.Pid, unix.SIGTERM); err != nil {
		return err
	}

	deadline := time.Now().Add(time.Duration(timeout) * time.Second)
	for time.Now().Before(deadline) {
		if !sysnr.ProcessAlive(c.Pid) {
			return m.reconcileExited(c, 128+int(unix.SIGTERM))
		}
		time.Sleep(100 * time.Millisecond)
	}

	return m.killAndReconcile(c, unix.SIGKILL)
}

func (m *Manager) killAndReconcile(c *model.Container, sig unix.Signal) error {
	_ = sysnr.Kill(c.Pid, sig)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && sysnr.ProcessAlive(c.Pid) {
		time.Sleep(50 * time.Millisecond)
	}
	return m.reconcileExited(c, 128+int(sig))
}

// reconcileExited records a container as stopped once its pid-1 is gone, and
// tears down its cgroup/rootfs/network resources. The exit code is best
// effort: without an owning Wait() the signal that actually killed it cannot
// always be distinguished from a clean exit of the same process, so a
// terminated-by-us stop is recorded as code, 128 plus the last signal sent:
// 143 (SIGTERM), or 137 once --force or the timeout escalated to SIGKILL.
func (m *Manager) reconcileExited(c *model.Container, code int) error {
	finished := time.Now()
	c.FinishedAt = &finished
	c.Status = model.StatusExited
	if c.ExitCode == 0 {
		c.ExitCode = code
	}
	if err := m.store.SaveState(c); err != nil {
		return err
	}
	return m.launcher.Cleanup(c)
}

// Rm implements `rm <c> [--force]`: refuses a running container unless
// --force, then deletes the state directory after tear-down.
func (m *Manager) Rm(ref string, force bool) error {
	id, err := m.store.Resolve(ref)
	if err != nil {
		return err
	}
	lock, err := m.store.LockContainer(id)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	c, err := m.store.Load(id)
	if err != nil {
		return err
	}
	if c.Status == model.StatusRunning {
		if !force {
			return ioerr.New(ioerr.KindStateConflict, "container is running, use --force to remove: "+ref)
		}
		if err := m.killAndReconcile(c, unix.SIGKILL); err != nil {
			return err
		}
	} else {
		if err := m.launcher.Cleanup(c); err != nil {
			m.log.WithError(err).Warn("tearing down already-stopped container")
		}
	}

	return m.store.RemoveContainer(id)
}

// CleanupOptions collects the `cleanup` verb's flags.
type CleanupOptions struct {
	All        bool
	Containers bool
	Images     bool
	Volumes    bool
	OlderThan  time.Duration
}

// Cleanup implements `cleanup --all`: removes dead/exited containers older
// than the threshold, and the bridge/NAT once no container references them.
func (m *Manager) Cleanup(opts CleanupOptions) (int, error) {
	if opts.OlderThan <= 0 {
		opts.OlderThan = time.Hour
	}
	removeContainers := opts.All || opts.Containers

	var removed int
	if removeContainers {
		list, err := m.store.List()
		if err != nil {
			return 0, err
		}
		cutoff := time.Now().Add(-opts.OlderThan)
		for _, c := range list {
			if c.Status != model.StatusDead && c.Status != model.StatusExited {
				continue
			}
			finished := c.FinishedAt
			if finished != nil && finished.After(cutoff) {
				continue
			}
			if err := m.Rm(c.ID, false); err != nil {
				m.log.WithError(err).WithField("container", c.ID).Warn("cleanup: removing container")
				continue
			}
			removed++
		}
	}

	leases, err := m.store.LeaseCount()
	if err == nil && leases == 0 {
		if err := m.net.RemoveBridge(); err != nil {
			m.log.WithError(err).Warn("cleanup: removing bridge")
		}
	}

	return removed, nil
}
