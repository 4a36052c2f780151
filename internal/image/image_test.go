package image

import (
	"testing"

	"github.com/mini-docker/mini-docker/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(t.TempDir())
}

func TestRegisterAndResolve(t *testing.T) {
	r := newTestRegistry(t)
	img := model.Image{NameTag: "myapp:latest", RootPath: "/var/lib/images/myapp"}

	if err := r.Register(img); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Resolve("myapp:latest")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.NameTag != img.NameTag || got.RootPath != img.RootPath {
		t.Errorf("Resolve() = %+v, want NameTag/RootPath to match %+v", got, img)
	}
	if got.RegisteredAt.IsZero() {
		t.Error("RegisteredAt should be set by Register")
	}
}

func TestRegisterRejectsDuplicateTag(t *testing.T) {
	r := newTestRegistry(t)
	img := model.Image{NameTag: "myapp:latest", RootPath: "/a"}

	if err := r.Register(img); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(img); err == nil {
		t.Error("expected the second Register of the same tag to fail")
	}
}

func TestResolveUnknownTag(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Resolve("nosuchtag"); err == nil {
		t.Error("expected an error resolving an unregistered tag")
	}
}

func TestListReturnsAllRegistered(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(model.Image{NameTag: "a:1", RootPath: "/a"}); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := r.Register(model.Image{NameTag: "b:1", RootPath: "/b"}); err != nil {
		t.Fatalf("Register b: %v", err)
	}

	list, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d images, want 2", len(list))
	}
}

func TestListOnEmptyRegistry(t *testing.T) {
	r := newTestRegistry(t)
	list, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List() on an empty registry = %v, want empty", list)
	}
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Register(model.Image{NameTag: "a:1", RootPath: "/a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Remove("a:1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := r.Resolve("a:1"); err == nil {
		t.Error("expected Resolve to fail after Remove")
	}
}

func TestRemoveUnknownTag(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Remove("nosuchtag"); err == nil {
		t.Error("expected an error removing an unregistered tag")
	}
}
