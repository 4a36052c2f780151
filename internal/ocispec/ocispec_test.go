package ocispec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mini-docker/mini-docker/internal/model"
)

func writeBundle(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0644); err != nil {
		t.Fatalf("writing config.json: %v", err)
	}
	return dir
}

func TestLoadBundleMinimal(t *testing.T) {
	dir := writeBundle(t, `{
		"hostname": "box",
		"process": {"args": ["/bin/sh", "-c", "echo hi"], "cwd": "/"},
		"root": {"path": "rootfs"}
	}`)

	c, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if c.Hostname != "box" {
		t.Errorf("Hostname = %q, want %q", c.Hostname, "box")
	}
	wantArgv := []string{"/bin/sh", "-c", "echo hi"}
	if len(c.Argv) != len(wantArgv) {
		t.Fatalf("Argv = %v, want %v", c.Argv, wantArgv)
	}
	wantRoot := filepath.Join(dir, "rootfs")
	if c.ImageRoot != wantRoot {
		t.Errorf("ImageRoot = %q, want %q (relative root joined to bundle dir)", c.ImageRoot, wantRoot)
	}
	if c.NetMode.Mode != "none" {
		t.Errorf("NetMode = %v, want none when no network namespace is listed", c.NetMode)
	}
}

func TestLoadBundleRejectsEmptyArgs(t *testing.T) {
	dir := writeBundle(t, `{"process": {"args": []}}`)
	if _, err := LoadBundle(dir); err == nil {
		t.Error("expected an error for an empty process.args")
	}
}

func TestLoadBundleNetworkNamespaceImpliesBridge(t *testing.T) {
	dir := writeBundle(t, `{
		"process": {"args": ["/bin/true"]},
		"linux": {"namespaces": [{"type": "network"}]}
	}`)

	c, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if c.NetMode.Mode != "bridge" {
		t.Errorf("NetMode = %v, want bridge when a network namespace is listed", c.NetMode)
	}
}

func TestLoadBundleReadonlyRootUsesBindMode(t *testing.T) {
	dir := writeBundle(t, `{
		"process": {"args": ["/bin/true"]},
		"root": {"path": "rootfs", "readonly": true}
	}`)

	c, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if c.RootfsMode != model.RootfsBind {
		t.Errorf("RootfsMode = %v, want %v for a readonly root", c.RootfsMode, model.RootfsBind)
	}
}

func TestLoadBundleMountsCarryReadOnlyOption(t *testing.T) {
	dir := writeBundle(t, `{
		"process": {"args": ["/bin/true"]},
		"mounts": [{"destination": "/data", "source": "/host/data", "options": ["ro"]}]
	}`)

	c, err := LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if len(c.Mounts) != 1 {
		t.Fatalf("Mounts = %v, want exactly one", c.Mounts)
	}
	m := c.Mounts[0]
	if m.ContainerPath != "/data" || m.HostPath != "/host/data" || !m.ReadOnly {
		t.Errorf("Mounts[0] = %+v, want {/host/data /data true}", m)
	}
}

func TestLoadBundleMissingFile(t *testing.T) {
	if _, err := LoadBundle(t.TempDir()); err == nil {
		t.Error("expected an error when config.json is missing")
	}
}

func TestLoadBundleInvalidJSON(t *testing.T) {
	dir := writeBundle(t, `{not json`)
	if _, err := LoadBundle(dir); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}
