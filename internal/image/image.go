// Package image is the minimal tag -> rootfs registry of spec.md §3's
// Image entity. It is deliberately not the Imagefile build-language
// interpreter (out of scope per spec.md §1); it only records and resolves
// already-built rootfs directories.
package image

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
)

// Registry persists Image records under <stateRoot>/images/<name_tag>.json.
type Registry struct {
	root string
}

func NewRegistry(stateRoot string) *Registry {
	return &Registry{root: filepath.Join(stateRoot, "images")}
}

func (r *Registry) pathFor(nameTag string) string {
	return filepath.Join(r.root, sanitize(nameTag)+".json")
}

func sanitize(nameTag string) string {
	out := make([]rune, 0, len(nameTag))
	for _, r := range nameTag {
		switch r {
		case '/', ':':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// Register records a new image. Images are immutable once registered: a
// second Register of the same tag fails with state.conflict.
func (r *Registry) Register(img model.Image) error {
	if err := os.MkdirAll(r.root, 0755); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "creating images directory")
	}
	path := r.pathFor(img.NameTag)
	if _, err := os.Stat(path); err == nil {
		return ioerr.New(ioerr.KindStateConflict, "image already registered: "+img.NameTag)
	}
	if img.RegisteredAt.IsZero() {
		img.RegisteredAt = time.Now()
	}
	data, err := json.MarshalIndent(img, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// Resolve looks up a registered image by its name:tag.
func (r *Registry) Resolve(nameTag string) (*model.Image, error) {
	data, err := os.ReadFile(r.pathFor(nameTag))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ioerr.New(ioerr.KindStateConflict, "unknown image: "+nameTag)
		}
		return nil, err
	}
	var img model.Image
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, err
	}
	return &img, nil
}

// List returns every registered image.
func (r *Registry) List() ([]model.Image, error) {
	entries, err := os.ReadDir(r.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []model.Image
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.root, e.Name()))
		if err != nil {
			continue
		}
		var img model.Image
		if err := json.Unmarshal(data, &img); err != nil {
			continue
		}
		out = append(out, img)
	}
	return out, nil
}

// Remove deletes a registered image record (rmi). It does not remove the
// underlying rootfs directory, which the caller may be sharing elsewhere.
func (r *Registry) Remove(nameTag string) error {
	err := os.Remove(r.pathFor(nameTag))
	if os.IsNotExist(err) {
		return ioerr.New(ioerr.KindStateConflict, "unknown image: "+nameTag)
	}
	return err
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
