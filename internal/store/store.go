// Package store is the state store of spec.md §4.7: the on-disk source of
// truth across invocations. It lays out containers/<id>/{config.json,
// state.json, container.log, rootfs/}, pods/<id>/{pod.json, ns/*}, and
// network/leases.json, and is the only package that writes the JSON
// records. container.log, rootfs/ and the ns/* handles are written by the
// launcher, rootfs and manager packages at the paths this package hands out.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// Store is rooted at a Runtime's StateRoot.
type Store struct {
	root string
}

func New(stateRoot string) *Store {
	return &Store{root: stateRoot}
}

func (s *Store) Root() string { return s.root }

func (s *Store) containerDir(id string) string { return filepath.Join(s.root, "containers", id) }
func (s *Store) podDir(id string) string       { return filepath.Join(s.root, "pods", id) }

// ContainerDir exposes the per-container directory for collaborators that
// build into it (the rootfs and launcher packages).
func (s *Store) ContainerDir(id string) string { return s.containerDir(id) }
func (s *Store) PodDir(id string) string       { return s.podDir(id) }
func (s *Store) NetworkDir() string            { return filepath.Join(s.root, "network") }

// CreateContainer allocates containers/<id>/ and writes config.json plus an
// initial state.json with status=created. The manager calls this before
// invoking the launcher.
func (s *Store) CreateContainer(c *model.Container) error {
	dir := s.containerDir(c.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "creating container directory")
	}
	c.Status = model.StatusCreated
	if err := s.writeConfig(c); err != nil {
		return err
	}
	return s.writeState(c)
}

func (s *Store) configPath(id string) string { return filepath.Join(s.containerDir(id), "config.json") }
func (s *Store) statePath(id string) string  { return filepath.Join(s.containerDir(id), "state.json") }
func (s *Store) LogPath(id string) string    { return filepath.Join(s.containerDir(id), "container.log") }

func (s *Store) writeConfig(c *model.Container) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.configPath(c.ID), data)
}

// stateDoc mirrors the on-disk state.json schema of spec.md §6.
type stateDoc struct {
	ID             string           `json:"id"`
	Name           string           `json:"name,omitempty"`
	Status         model.Status     `json:"status"`
	Pid            int              `json:"pid"`
	StartTimeTicks uint64           `json:"start_time_ticks,omitempty"`
	ExitCode       *int             `json:"exit_code,omitempty"`
	CreatedAt      string           `json:"created_at"`
	StartedAt      string           `json:"started_at,omitempty"`
	FinishedAt     string           `json:"finished_at,omitempty"`
	RootfsMode     model.RootfsMode `json:"rootfs_mode"`
}

func toStateDoc(c *model.Container) stateDoc {
	d := stateDoc{
		ID:             c.ID,
		Name:           c.Name,
		Status:         c.Status,
		Pid:            c.Pid,
		StartTimeTicks: c.StartTimeTicks,
		CreatedAt:      c.CreatedAt.Format(timeFormat),
		RootfsMode:     c.RootfsMode,
	}
	if c.Status == model.StatusExited || c.Status == model.StatusDead {
		code := c.ExitCode
		d.ExitCode = &code
	}
	if c.StartedAt != nil {
		d.StartedAt = c.StartedAt.Format(timeFormat)
	}
	if c.FinishedAt != nil {
		d.FinishedAt = c.FinishedAt.Format(timeFormat)
	}
	return d
}

const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func (s *Store) writeState(c *model.Container) error {
	data, err := json.MarshalIndent(toStateDoc(c), "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.statePath(c.ID), data)
}

// SaveState persists whatever mutable fields the caller changed on c
// (status, pid, exit code, timestamps). It is the only mutator callers
// outside this package should use once a container exists.
func (s *Store) SaveState(c *model.Container) error {
	return s.writeState(c)
}

// SaveConfig rewrites config.json, used rarely (e.g. recording a rootfs
// mode fallback decided during fs build).
func (s *Store) SaveConfig(c *model.Container) error {
	return s.writeConfig(c)
}

// writeAtomic implements the write-temp-then-rename requirement of
// spec.md §4.7.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a container's config.json and state.json, reconciles status
// against /proc (the "stale running" case of spec.md §4.7), and returns
// the merged record. Reconciliation runs on every Load, so ps/inspect/stop
// always see a consistent picture.
func (s *Store) Load(id string) (*model.Container, error) {
	cfgData, err := os.ReadFile(s.configPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ioerr.New(ioerr.KindStateConflict, "no such container: "+id)
		}
		return nil, err
	}
	var c model.Container
	if err := json.Unmarshal(cfgData, &c); err != nil {
		return nil, err
	}

	stData, err := os.ReadFile(s.statePath(id))
	if err != nil {
		return nil, err
	}
	var st stateDoc
	if err := json.Unmarshal(stData, &st); err != nil {
		return nil, err
	}
	c.Status = st.Status
	c.Pid = st.Pid
	c.StartTimeTicks = st.StartTimeTicks
	if st.ExitCode != nil {
		c.ExitCode = *st.ExitCode
	}
	if t, err := time.Parse(timeFormat, st.StartedAt); err == nil {
		c.StartedAt = &t
	}
	if t, err := time.Parse(timeFormat, st.FinishedAt); err == nil {
		c.FinishedAt = &t
	}

	s.reconcile(&c)
	return &c, nil
}

// reconcile rewrites a stale "running" status to "dead" when the recorded
// pid is gone or has been reused by an unrelated process, per invariant
// (5) of spec.md §3.
func (s *Store) reconcile(c *model.Container) {
	if c.Status != model.StatusRunning {
		return
	}
	if !sysnr.ProcessAlive(c.Pid) {
		c.Status = model.StatusDead
		_ = s.writeState(c)
		return
	}
	if c.StartTimeTicks != 0 {
		ticks, err := sysnr.ReadProcStartTime(c.Pid)
		if err != nil || ticks != c.StartTimeTicks {
			c.Status = model.StatusDead
			_ = s.writeState(c)
		}
	}
}

// List returns every container, reconciled.
func (s *Store) List() ([]*model.Container, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "containers"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*model.Container
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		c, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RemoveContainer deletes a container's state directory. Callers must have
// already torn down its cgroup, rootfs, and network resources.
func (s *Store) RemoveContainer(id string) error {
	return os.RemoveAll(s.containerDir(id))
}

// Resolve implements the name/prefix resolution of spec.md §4.7: an exact
// name match wins, otherwise any unique id prefix of at least 3 characters.
func (s *Store) Resolve(ref string) (string, error) {
	all, err := s.List()
	if err != nil {
		return "", err
	}
	for _, c := range all {
		if c.Name == ref {
			return c.ID, nil
		}
	}
	if len(ref) < 3 {
		return "", ioerr.New(ioerr.KindStateConflict, "no such container: "+ref)
	}
	var matches []string
	for _, c := range all {
		if strings.HasPrefix(c.ID, ref) {
			matches = append(matches, c.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", ioerr.New(ioerr.KindStateConflict, "no such container: "+ref)
	case 1:
		return matches[0], nil
	default:
		return "", ioerr.New(ioerr.KindStateConflict, "ambiguous container reference: "+ref)
	}
}

// NameTaken reports whether name is in use by a live container (invariant
// 1 of spec.md §3: uniqueness holds only among status != dead, per the
// Open Question resolved in DESIGN.md).
func (s *Store) NameTaken(name string) (bool, error) {
	all, err := s.List()
	if err != nil {
		return false, err
	}
	for _, c := range all {
		if c.Name == name && c.IsLive() {
			return true, nil
		}
	}
	return false, nil
}
