package manager

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/internal/idgen"
	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/launcher"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// PodCreate implements `pod create <name>`: allocates an id, spawns the
// namespace-pinning placeholder, and bind-mounts its net/ipc/uts handles
// onto pods/<id>/ns/*, per spec.md §4.8.
func (m *Manager) PodCreate(name string) (*model.Pod, error) {
	if name != "" {
		if _, err := m.store.ResolvePod(name); err == nil {
			return nil, ioerr.New(ioerr.KindStateConflict, "pod name already in use: "+name)
		}
	}
	id, err := idgen.New()
	if err != nil {
		return nil, err
	}
	p := &model.Pod{ID: id, Name: name, SharedNamespaces: []string{"net", "ipc", "uts"}}
	if err := m.store.CreatePod(p); err != nil {
		return nil, err
	}

	pid, release, err := launcher.SpawnPinner()
	if err != nil {
		_ = m.store.RemovePod(id)
		return nil, err
	}

	for _, ns := range p.SharedNamespaces {
		src := fmt.Sprintf("/proc/%d/ns/%s", pid, ns)
		dst := m.store.NsHandlePath(id, ns)
		if f, cerr := os.Create(dst); cerr == nil {
			f.Close()
		}
		if err := sysnr.Mount(src, dst, "", unix.MS_BIND, ""); err != nil {
			_ = release()
			_ = m.store.RemovePod(id)
			return nil, err
		}
	}

	if err := release(); err != nil {
		m.log.WithError(err).Warn("releasing pod namespace placeholder")
	}

	return p, nil
}

// PodAdd implements `pod add P ...`: equivalent to `run` with
// net_mode=pod(P) and pod_id set.
func (m *Manager) PodAdd(podRef string, opts RunOptions) (*model.Container, error) {
	podID, err := m.store.ResolvePod(podRef)
	if err != nil {
		return nil, err
	}
	pod, err := m.store.LoadPod(podID)
	if err != nil {
		return nil, err
	}

	opts.PodID = podID
	opts.Net = "pod"
	c, err := m.Run(opts)
	if err != nil {
		return nil, err
	}

	pod.Members = append(pod.Members, c.ID)
	if err := m.store.SavePod(pod); err != nil {
		m.log.WithError(err).Warn("recording pod membership")
	}
	return c, nil
}

// PodLs lists every pod.
func (m *Manager) PodLs() ([]*model.Pod, error) {
	return m.store.ListPods()
}

// PodInspect loads a pod's record by name or id prefix.
func (m *Manager) PodInspect(ref string) (*model.Pod, error) {
	id, err := m.store.ResolvePod(ref)
	if err != nil {
		return nil, err
	}
	return m.store.LoadPod(id)
}

// PodRm implements `pod rm P [--force]`: refuses if any member is running
// unless --force, unmounts pinned namespaces (triggering their destruction
// once no other reference remains), and removes the pod directory.
func (m *Manager) PodRm(ref string, force bool) error {
	id, err := m.store.ResolvePod(ref)
	if err != nil {
		return err
	}
	pod, err := m.store.LoadPod(id)
	if err != nil {
		return err
	}

	for _, memberID := range pod.Members {
		c, err := m.store.Load(memberID)
		if err != nil {
			continue
		}
		if c.Status == model.StatusRunning {
			if !force {
				return ioerr.New(ioerr.KindStateConflict, "pod has a running member, use --force: "+memberID)
			}
			if err := m.Rm(memberID, true); err != nil {
				m.log.WithError(err).WithField("container", memberID).Warn("removing pod member")
			}
		}
	}

	for _, ns := range pod.SharedNamespaces {
		path := m.store.NsHandlePath(id, ns)
		if err := sysnr.Unmount(path, unix.MNT_DETACH); err != nil {
			m.log.WithError(err).WithField("ns", ns).Warn("unmounting pinned pod namespace")
		}
	}

	return m.store.RemovePod(id)
}
