package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
)

func (s *Store) podConfigPath(id string) string { return filepath.Join(s.podDir(id), "pod.json") }

// CreatePod allocates pods/<id>/ and its ns/ subdirectory, ready for the
// manager to bind-mount namespace handles into.
func (s *Store) CreatePod(p *model.Pod) error {
	dir := s.podDir(p.ID)
	if err := os.MkdirAll(filepath.Join(dir, "ns"), 0755); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "creating pod directory")
	}
	return s.SavePod(p)
}

func (s *Store) SavePod(p *model.Pod) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.podConfigPath(p.ID), data)
}

func (s *Store) LoadPod(id string) (*model.Pod, error) {
	data, err := os.ReadFile(s.podConfigPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ioerr.New(ioerr.KindStateConflict, "no such pod: "+id)
		}
		return nil, err
	}
	var p model.Pod
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPods() ([]*model.Pod, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "pods"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*model.Pod
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := s.LoadPod(e.Name())
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// RemovePod deletes a pod's directory. Callers must unmount its pinned
// namespace handles first.
func (s *Store) RemovePod(id string) error {
	return os.RemoveAll(s.podDir(id))
}

// NsHandlePath returns the bind-mount target for one of the pod's pinned
// namespace handles ("net", "ipc", "uts").
func (s *Store) NsHandlePath(podID, nsType string) string {
	return filepath.Join(s.podDir(podID), "ns", nsType)
}

// ResolvePod resolves a name or unique id prefix to a pod id, mirroring
// container resolution.
func (s *Store) ResolvePod(ref string) (string, error) {
	all, err := s.ListPods()
	if err != nil {
		return "", err
	}
	for _, p := range all {
		if p.Name == ref {
			return p.ID, nil
		}
	}
	if len(ref) < 3 {
		return "", ioerr.New(ioerr.KindStateConflict, "no such pod: "+ref)
	}
	var matches []string
	for _, p := range all {
		if strings.HasPrefix(p.ID, ref) {
			matches = append(matches, p.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", ioerr.New(ioerr.KindStateConflict, "no such pod: "+ref)
	case 1:
		return matches[0], nil
	default:
		return "", ioerr.New(ioerr.KindStateConflict, "ambiguous pod reference: "+ref)
	}
}
