package cgroup

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// OOMEvent reports a change in the oom_kill counter of memory.events.
type OOMEvent struct {
	OOMKillCount uint64
}

// WatchOOM opens memory.events and epoll-watches it for changes, pushing
// an OOMEvent each time the oom_kill counter advances. This is the
// concrete form of spec.md §4.2's "reports the event through an OOM
// notifier (an epoll on memory.events)" and the parent-side event loop of
// §5 ("poll over stdio, signalfd, and a cgroup memory.events fd"). The
// returned channel is closed when stop is closed or the cgroup disappears.
func (c *Controller) WatchOOM(stop <-chan struct{}) (<-chan OOMEvent, error) {
	path := filepath.Join(c.path, "memory.events")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		f.Close()
		return nil, err
	}
	// memory.events reports changes via EPOLLPRI on cgroup v2.
	ev := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR, Fd: int32(f.Fd())}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, int(f.Fd()), &ev); err != nil {
		f.Close()
		unix.Close(epfd)
		return nil, err
	}

	out := make(chan OOMEvent, 1)
	last := uint64(0)

	go func() {
		defer f.Close()
		defer unix.Close(epfd)
		defer close(out)

		events := make([]unix.EpollEvent, 4)
		for {
			select {
			case <-stop:
				return
			default:
			}

			n, err := unix.EpollWait(epfd, events, 250)
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				return
			}
			if n == 0 {
				continue
			}

			count, err := readOOMKillCount(path)
			if err != nil {
				continue
			}
			if count > last {
				last = count
				select {
				case out <- OOMEvent{OOMKillCount: count}:
				case <-stop:
					return
				}
			}
		}
	}()

	return out, nil
}

func readOOMKillCount(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, val, ok := strings.Cut(scanner.Text(), " ")
		if !ok {
			continue
		}
		if key == "oom_kill" {
			return strconv.ParseUint(strings.TrimSpace(val), 10, 64)
		}
	}
	return 0, scanner.Err()
}
