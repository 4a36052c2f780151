// Package sysnr is the syscall surface of spec.md §4.1: thin typed
// wrappers over the Linux syscalls the launcher needs. Mount, namespace
// and prctl calls go through this package; other packages use
// golang.org/x/sys/unix directly only for constants, signals, epoll and
// execve, and internal/security applies capability sets through
// github.com/moby/sys/capability. Each wrapper reports the
// underlying errno symbolically via internal/ioerr, per the teacher's
// newSystemErrorWithCause convention in libcontainer/process_linux.go.
package sysnr

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/internal/ioerr"
)

// Namespace flags, named the way configs.Namespaces names them in the
// teacher's vendored runc libcontainer/configs package.
const (
	NewNS     = unix.CLONE_NEWNS
	NewUTS    = unix.CLONE_NEWUTS
	NewIPC    = unix.CLONE_NEWIPC
	NewPID    = unix.CLONE_NEWPID
	NewNet    = unix.CLONE_NEWNET
	NewUser   = unix.CLONE_NEWUSER
	NewCgroup = unix.CLONE_NEWCGROUP
)

func errnoOf(err error) (unix.Errno, bool) {
	e, ok := err.(unix.Errno)
	return e, ok
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := errnoOf(err); ok {
		return ioerr.WrapErrno(op, errno)
	}
	return ioerr.Wrap(ioerr.KindResourceKernel, err, op)
}

// Unshare detaches the calling thread's namespaces per flags.
func Unshare(flags int) error {
	return wrap("unshare", unix.Unshare(flags))
}

// Setns joins the namespace referenced by fd. nstype is one of the
// CLONE_NEW* constants, or 0 to accept any type.
func Setns(fd int, nstype int) error {
	return wrap("setns", unix.Setns(fd, nstype))
}

// PivotRoot atomically swaps the mount namespace's root.
func PivotRoot(newRoot, putOld string) error {
	return wrap("pivot_root", unix.PivotRoot(newRoot, putOld))
}

// Mount is the generic mount(2) wrapper used by the filesystem and
// network builders.
func Mount(source, target, fstype string, flags uintptr, data string) error {
	return wrap("mount", unix.Mount(source, target, fstype, flags, data))
}

// Unmount calls umount2(2).
func Unmount(target string, flags int) error {
	return wrap("umount2", unix.Unmount(target, flags))
}

// Sethostname sets the UTS hostname of the current namespace.
func Sethostname(name string) error {
	return wrap("sethostname", unix.Sethostname([]byte(name)))
}

// SetNoNewPrivs sets PR_SET_NO_NEW_PRIVS so setuid/setgid bits are ignored
// on subsequent execve, per spec.md §4.5.
func SetNoNewPrivs() error {
	return wrap("prctl(PR_SET_NO_NEW_PRIVS)", unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0))
}

// CapBsetDrop drops a single capability from the bounding set via
// prctl(PR_CAPBSET_DROP, cap).
func CapBsetDrop(cap uintptr) error {
	return wrap("prctl(PR_CAPBSET_DROP)", unix.Prctl(unix.PR_CAPBSET_DROP, cap, 0, 0, 0))
}

// Kill sends a signal to pid, the typed wrapper over kill(2).
func Kill(pid int, sig unix.Signal) error {
	return wrap("kill", unix.Kill(pid, sig))
}

// Chdir changes the current directory, used during pivot and workdir setup.
func Chdir(path string) error {
	return wrap("chdir", unix.Chdir(path))
}

// Chroot is used by the unprivileged rootfs fallback of spec.md §4.3,
// which cannot pivot_root without CAP_SYS_ADMIN.
func Chroot(path string) error {
	return wrap("chroot", unix.Chroot(path))
}

// Mknod creates a device node.
func Mknod(path string, mode uint32, dev int) error {
	return wrap("mknod", unix.Mknod(path, mode, dev))
}

// Stat wraps unix.Stat for mount-namespace identity comparisons (device +
// inode).
func Stat(path string) (unix.Stat_t, error) {
	var st unix.Stat_t
	err := unix.Stat(path, &st)
	return st, wrap("stat", err)
}

// ReadProcStartTime reads /proc/<pid>/stat's start-time field (22nd field),
// used by the state store to validate a stored PID was not reused
// (invariant 5 of spec.md §3).
func ReadProcStartTime(pid int) (uint64, error) {
	return readStartTime(pid)
}

// ProcessAlive reports whether pid refers to a live process, without
// racing on reuse (caller must additionally compare start-time). A pid of
// zero or below, which kill(2) treats as a process group, is never alive.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// Setresuid / Setresgid are used by the launcher child to drop to the
// requested container user after namespace and capability setup.
func Setresuid(ruid, euid, suid int) error {
	return wrap("setresuid", unix.Setresuid(ruid, euid, suid))
}

func Setresgid(rgid, egid, sgid int) error {
	return wrap("setresgid", unix.Setresgid(rgid, egid, sgid))
}

// Flock takes an advisory lock on an open file, used to guard the shared
// resources of spec.md §5 (network/.lock, containers/<id>/.lock).
func Flock(f *os.File, how int) error {
	return wrap("flock", unix.Flock(int(f.Fd()), how))
}
