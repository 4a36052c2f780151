package store

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// Lock is a held advisory flock, guarding one of the shared resources of
// spec.md §5: network/.lock or containers/<id>/.lock.
type Lock struct {
	f *os.File
}

// Unlock releases and closes the lock file.
func (l *Lock) Unlock() error {
	defer l.f.Close()
	return sysnr.Flock(l.f, unix.LOCK_UN)
}

func lockPath(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, ioerr.Wrap(ioerr.KindResourceKernel, err, "opening lock file")
	}
	if err := sysnr.Flock(f, unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// LockNetwork takes the exclusive flock on network/.lock that guards the
// bridge and the IP lease map, per spec.md §5.
func (s *Store) LockNetwork() (*Lock, error) {
	path, err := lockPath(s.NetworkDir(), ".lock")
	if err != nil {
		return nil, err
	}
	return acquire(path)
}

// LockContainer takes the exclusive flock on containers/<id>/.lock that
// serialises stop/rm/exec on the same container, per spec.md §5.
func (s *Store) LockContainer(id string) (*Lock, error) {
	path, err := lockPath(s.containerDir(id), ".lock")
	if err != nil {
		return nil, err
	}
	return acquire(path)
}
