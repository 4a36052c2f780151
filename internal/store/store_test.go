package store

import (
	"os"
	"testing"
	"time"

	"github.com/mini-docker/mini-docker/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(dir)
}

func mustCreate(t *testing.T, s *Store, id, name string, status model.Status) *model.Container {
	t.Helper()
	c := &model.Container{
		ID:        id,
		Name:      name,
		ImageRoot: "/tmp/rootfs",
		Argv:      []string{"/bin/true"},
		CreatedAt: time.Now(),
		Pid:       os.Getpid(), // a live pid, so reconcile doesn't flip to dead
	}
	if err := s.CreateContainer(c); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	c.Status = status
	if err := s.SaveState(c); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	return c
}

func TestCreateAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := mustCreate(t, s, "deadbeef0001", "web", model.StatusRunning)

	got, err := s.Load(want.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != want.ID || got.Name != want.Name || got.Status != model.StatusRunning {
		t.Errorf("Load() = %+v, want id/name/status to match %+v", got, want)
	}
}

func TestLoadUnknownContainer(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load("doesnotexist"); err == nil {
		t.Error("expected an error loading a nonexistent container")
	}
}

func TestResolveByNameAndPrefix(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, "abc123456789", "web", model.StatusRunning)
	mustCreate(t, s, "def987654321", "db", model.StatusRunning)

	if id, err := s.Resolve("web"); err != nil || id != "abc123456789" {
		t.Errorf("Resolve(\"web\") = (%q, %v), want (abc123456789, nil)", id, err)
	}
	if id, err := s.Resolve("abc"); err != nil || id != "abc123456789" {
		t.Errorf("Resolve(\"abc\") = (%q, %v), want (abc123456789, nil)", id, err)
	}
	if _, err := s.Resolve("zz"); err == nil {
		t.Error("Resolve with a too-short ref should error")
	}
	if _, err := s.Resolve("nosuch"); err == nil {
		t.Error("Resolve with no match should error")
	}
}

func TestResolveAmbiguousPrefix(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, "aaa111111111", "", model.StatusRunning)
	mustCreate(t, s, "aaa222222222", "", model.StatusRunning)

	if _, err := s.Resolve("aaa"); err == nil {
		t.Error("expected an ambiguous-prefix error")
	}
}

func TestNameTakenOnlyAmongLive(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, "111111111111", "web", model.StatusDead)

	taken, err := s.NameTaken("web")
	if err != nil {
		t.Fatalf("NameTaken: %v", err)
	}
	if taken {
		t.Error("a dead container's name should be free for reuse")
	}

	mustCreate(t, s, "222222222222", "api", model.StatusRunning)
	taken, err = s.NameTaken("api")
	if err != nil {
		t.Fatalf("NameTaken: %v", err)
	}
	if !taken {
		t.Error("a running container's name should be reported as taken")
	}
}

func TestRemoveContainer(t *testing.T) {
	s := newTestStore(t)
	c := mustCreate(t, s, "333333333333", "", model.StatusExited)

	if err := s.RemoveContainer(c.ID); err != nil {
		t.Fatalf("RemoveContainer: %v", err)
	}
	if _, err := s.Load(c.ID); err == nil {
		t.Error("expected Load to fail after RemoveContainer")
	}
}
