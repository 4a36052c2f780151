// Package rootfs implements the filesystem builder of spec.md §4.3: it
// constructs the container's root (OverlayFS or bind-mount fallback),
// mounts /proc, /sys, /dev, applies user bind volumes, and performs
// pivot_root plus old-root cleanup. Grounded on the teacher's rootfs
// layout conventions (libsysbox/syscont/spec.go's sysboxMounts list) and
// on the minimal re-exec pivot sequence in
// other_examples/3169614e_xonas1101-mini-containerd__main.go.go, extended
// to cover the overlay/bind/chroot three-way split spec.md requires.
package rootfs

import (
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/moby/sys/mountinfo"
	"github.com/mrunalp/fileutils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
	"github.com/mini-docker/mini-docker/internal/runtime"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// Layout is the on-disk rootfs/ directory of spec.md §4.3 under a
// container's state directory.
type Layout struct {
	Root   string // containers/<id>/rootfs
	Lower  string
	Upper  string
	Work   string
	Merged string
}

func NewLayout(containerDir string) Layout {
	root := filepath.Join(containerDir, "rootfs")
	return Layout{
		Root:   root,
		Lower:  filepath.Join(root, "lower"),
		Upper:  filepath.Join(root, "upper"),
		Work:   filepath.Join(root, "work"),
		Merged: filepath.Join(root, "merged"),
	}
}

// Builder constructs and later tears down one container's rootfs.
type Builder struct {
	rt     *runtime.Runtime
	log    *logrus.Entry
	layout Layout
}

func New(rt *runtime.Runtime, layout Layout) *Builder {
	return &Builder{rt: rt, log: rt.Log.WithField("component", "rootfs"), layout: layout}
}

// Build creates the container root for c, choosing overlay, bind, or
// unprivileged-chroot mode, mounting special filesystems, applying user
// bind volumes, and returns the RootfsMode actually used (it may fall back
// from overlay to bind, per spec.md §4.3) plus the effective root path the
// caller must pivot_root or chroot into.
func (b *Builder) Build(c *model.Container) (model.RootfsMode, string, error) {
	if err := os.MkdirAll(b.layout.Merged, 0755); err != nil {
		return "", "", ioerr.Wrap(ioerr.KindResourceKernel, err, "creating merged dir")
	}

	mode := c.RootfsMode
	if !b.rt.Caps.CanMount {
		return b.buildChroot(c)
	}

	if mode == model.RootfsOverlay {
		if err := b.mountOverlay(); err != nil {
			b.log.WithError(err).Warn("overlay mount failed, falling back to bind mode")
			mode = model.RootfsBind
		}
	}
	if mode == model.RootfsBind {
		if err := b.mountBind(c.ImageRoot); err != nil {
			return "", "", err
		}
	}

	if err := b.mountSpecial(); err != nil {
		return mode, "", err
	}
	if err := b.applyUserMounts(c.Mounts); err != nil {
		return mode, "", err
	}

	return mode, b.layout.Merged, nil
}

// mountOverlay issues the single overlay mount of spec.md §4.3, creating
// upper and work first. It does not create the lower -> image_root symlink;
// that must already exist.
func (b *Builder) mountOverlay() error {
	for _, dir := range []string{b.layout.Upper, b.layout.Work} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if _, err := os.Lstat(b.layout.Lower); os.IsNotExist(err) {
		// Lower is a symlink to image_root; the launcher creates it before
		// the child calls Build (see launcher.prepareLowerSymlink).
	}

	data := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", b.layout.Lower, b.layout.Upper, b.layout.Work)
	err := sysnr.Mount("overlay", b.layout.Merged, "overlay", 0, data)
	if err == nil {
		return nil
	}
	if ioErr, ok := err.(*ioerr.Error); ok {
		switch ioErr.Errno {
		case unix.ENOTSUP, unix.EPERM, unix.EINVAL:
			return ioErr
		}
	}
	return err
}

// mountBind performs the bind-mode layout: bind the image read-write, then
// remount read-only, per spec.md §4.3.
func (b *Builder) mountBind(imageRoot string) error {
	if err := sysnr.Mount(imageRoot, b.layout.Merged, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return err
	}
	if err := sysnr.Mount("", b.layout.Merged, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, ""); err != nil {
		return err
	}
	return nil
}

// buildChroot is the unprivileged variant of spec.md §4.3: hard-link the
// image into merged/ where possible (copy-on-write style), falling back to
// chrooting into the image directly. /proc and /sys are not mounted.
func (b *Builder) buildChroot(c *model.Container) (model.RootfsMode, string, error) {
	if err := hardlinkTree(c.ImageRoot, b.layout.Merged); err != nil {
		b.log.WithError(err).Warn("hard-link copy of image failed, chrooting into image directly")
		return model.RootfsBind, c.ImageRoot, b.applyUserMountsChroot(c.Mounts, c.ImageRoot)
	}
	return model.RootfsBind, b.layout.Merged, b.applyUserMountsChroot(c.Mounts, b.layout.Merged)
}

// hardlinkTree recreates src's directory structure under dst, hard-linking
// regular files (a cheap copy-on-write approximation when overlayfs is not
// available) via fileutils.CreateIfNotExists/CopyFile, the same helpers
// the teacher's vendored runc tree uses for its own rootfs preparation.
func hardlinkTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return fileutils.CreateIfNotExists(target, true)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		if err := os.Link(path, target); err != nil {
			return fileutils.CopyFile(path, target)
		}
		return nil
	})
}

func (b *Builder) applyUserMountsChroot(mounts []model.Mount, base string) error {
	for _, m := range mounts {
		if _, err := os.Stat(m.HostPath); err != nil {
			return ioerr.Wrap(ioerr.KindFSBindMissing, err, "bind-mount host path missing: "+m.HostPath)
		}
		target, err := securejoin.SecureJoin(base, m.ContainerPath)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := fileutils.CopyFile(m.HostPath, target); err != nil {
			b.log.WithError(err).Debug("could not materialise bind mount in chroot mode")
		}
	}
	return nil
}

// mountSpecial mounts /proc, /sys, /dev inside merged, matching the
// minimal device set of spec.md §4.3.
func (b *Builder) mountSpecial() error {
	type sm struct {
		dest, fstype, data string
		flags              uintptr
	}
	specials := []sm{
		{"proc", "proc", "", 0},
		{"sys", "sysfs", "", 0},
		{"dev", "tmpfs", "mode=755,size=65536k", unix.MS_NOSUID | unix.MS_STRICTATIME},
	}
	for _, s := range specials {
		dest := filepath.Join(b.layout.Merged, s.dest)
		if err := os.MkdirAll(dest, 0755); err != nil {
			return err
		}
		if err := sysnr.Mount(s.fstype, dest, s.fstype, s.flags, s.data); err != nil {
			return err
		}
	}

	devDir := filepath.Join(b.layout.Merged, "dev")
	for _, dev := range []string{"null", "zero", "random", "urandom", "tty"} {
		target := filepath.Join(devDir, dev)
		if f, err := os.Create(target); err == nil {
			f.Close()
		}
		_ = sysnr.Mount(filepath.Join("/dev", dev), target, "", unix.MS_BIND, "")
	}
	return nil
}

// applyUserMounts applies the container's {host, container, ro} bind
// volumes against merged before pivot, per spec.md §4.3. Relative
// container paths are resolved against merged; host paths that do not
// exist are fatal.
func (b *Builder) applyUserMounts(mounts []model.Mount) error {
	for _, m := range mounts {
		if _, err := os.Stat(m.HostPath); err != nil {
			return ioerr.Wrap(ioerr.KindFSBindMissing, err, "bind-mount host path missing: "+m.HostPath)
		}
		target, err := securejoin.SecureJoin(b.layout.Merged, m.ContainerPath)
		if err != nil {
			return ioerr.Wrap(ioerr.KindResourceKernel, err, "resolving bind target")
		}
		if err := os.MkdirAll(target, 0755); err != nil {
			return err
		}
		if err := sysnr.Mount(m.HostPath, target, "", unix.MS_BIND, ""); err != nil {
			return err
		}
		if m.ReadOnly {
			if err := sysnr.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// Pivot changes into merged, pivot_roots into it, and cleans up the old
// root, per spec.md §4.3.
func (b *Builder) Pivot() error {
	if err := sysnr.Chdir(b.layout.Merged); err != nil {
		return err
	}
	oldRoot := filepath.Join(b.layout.Merged, ".oldroot")
	if err := os.MkdirAll(oldRoot, 0700); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "creating .oldroot")
	}
	if err := sysnr.PivotRoot(".", ".oldroot"); err != nil {
		return err
	}
	if err := sysnr.Unmount("/.oldroot", unix.MNT_DETACH); err != nil {
		return err
	}
	if err := os.RemoveAll("/.oldroot"); err != nil {
		b.log.WithError(err).Warn("removing /.oldroot")
	}
	return sysnr.Chdir("/")
}

// Teardown unmounts everything under merged in reverse mount order (using
// mountinfo to discover what's actually mounted, since user bind volumes
// are dynamic), then removes upper/work/merged. It is idempotent.
func (b *Builder) Teardown() error {
	mounts, err := mountinfo.GetMounts(mountinfo.PrefixFilter(b.layout.Merged))
	if err == nil {
		// Unmount in reverse mountinfo order, so later mounts go first.
		for i := len(mounts) - 1; i >= 0; i-- {
			_ = sysnr.Unmount(mounts[i].Mountpoint, unix.MNT_DETACH)
		}
	}
	_ = sysnr.Unmount(b.layout.Merged, unix.MNT_DETACH)

	if err := os.RemoveAll(b.layout.Root); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "removing rootfs directory")
	}
	return nil
}
