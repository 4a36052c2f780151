package manager

import (
	"os"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/launcher"
	"github.com/mini-docker/mini-docker/internal/model"
)

// ExecOptions collects the `exec` verb's flags.
type ExecOptions struct {
	Interactive bool
	TTY         bool
	Env         []string
	Workdir     string
	User        string
}

// Exec implements `exec <c> <argv...>` (spec.md §4.8): resolves the target,
// then hands off to the launcher's two-stage re-exec helper, which joins
// the target's namespaces, re-drops capabilities, and execve's argv.
func (m *Manager) Exec(ref string, argv []string, opts ExecOptions) error {
	if len(argv) == 0 {
		return ioerr.New(ioerr.KindConfigInvalid, "exec requires a command")
	}
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
		return ioerr.New(ioerr.KindStateConflict, "container is not running: "+ref)
	}

	user := opts.User
	if user == "" {
		user = c.User
	}
	workdir := opts.Workdir
	if workdir == "" {
		workdir = c.Workdir
	}
	env := opts.Env
	if len(env) == 0 {
		env = append([]string(nil), c.Env...)
	}
	env = append(env, "HOSTNAME="+c.Hostname)

	cmd := launcher.ExecInto(id, c.Pid, m.store.Root(), workdir, user, argv, env)
	if opts.TTY {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "starting exec helper")
	}
	if err := cmd.Wait(); err != nil {
		return ioerr.UserExited(exitCodeFromWait(err))
	}
	return nil
}
