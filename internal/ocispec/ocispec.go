// Package ocispec consumes the minimal OCI bundle subset of spec.md §6: a
// directory holding config.json and rootfs/. It is grounded on the
// teacher's loadSpec/validateProcessSpec in spec.go and
// libsysbox/syscont/spec.go's field-by-field walk of a specs.Spec, but
// trimmed to only the fields spec.md names -- this is not a general OCI
// runtime-spec implementation.
package ocispec

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/model"
)

// LoadBundle reads <bundlePath>/config.json and translates the fields
// spec.md §6 names into a model.Container. Unknown fields are ignored.
func LoadBundle(bundlePath string) (*model.Container, error) {
	cfgPath := filepath.Join(bundlePath, "config.json")
	f, err := os.Open(cfgPath)
	if err != nil {
		return nil, ioerr.Wrap(ioerr.KindConfigInvalid, err, "opening OCI bundle config.json")
	}
	defer f.Close()

	var spec specs.Spec
	if err := json.NewDecoder(f).Decode(&spec); err != nil {
		return nil, ioerr.Wrap(ioerr.KindConfigInvalid, err, "parsing OCI bundle config.json")
	}

	c := &model.Container{
		Hostname:   spec.Hostname,
		RootfsMode: model.RootfsOverlay,
	}

	if spec.Process != nil {
		c.Argv = spec.Process.Args
		c.Env = spec.Process.Env
		c.Workdir = spec.Process.Cwd
		c.User = strconv.FormatUint(uint64(spec.Process.User.UID), 10) + ":" +
			strconv.FormatUint(uint64(spec.Process.User.GID), 10)
	}
	if len(c.Argv) == 0 {
		return nil, ioerr.New(ioerr.KindConfigInvalid, "OCI bundle process.args is empty")
	}

	if spec.Root != nil {
		root := spec.Root.Path
		if !filepath.IsAbs(root) {
			root = filepath.Join(bundlePath, root)
		}
		c.ImageRoot = root
		if spec.Root.Readonly {
			c.RootfsMode = model.RootfsBind
		}
	}

	c.NetMode = model.NetMode{Mode: "none"}
	if spec.Linux != nil {
		for _, ns := range spec.Linux.Namespaces {
			if ns.Type == specs.NetworkNamespace {
				c.NetMode = model.NetMode{Mode: "bridge"}
			}
		}
		if r := spec.Linux.Resources; r != nil {
			if r.Memory != nil && r.Memory.Limit != nil {
				c.Limits.MemoryBytes = r.Memory.Limit
			}
			if r.CPU != nil && r.CPU.Quota != nil && r.CPU.Period != nil && *r.CPU.Period > 0 {
				pct := int(*r.CPU.Quota * 100 / int64(*r.CPU.Period))
				c.Limits.CPUPercent = &pct
			}
			if r.Pids != nil {
				c.Limits.PidsMax = &r.Pids.Limit
			}
		}
	}

	for _, m := range spec.Mounts {
		if !strings.HasPrefix(m.Destination, "/") {
			continue
		}
		ro := false
		for _, opt := range m.Options {
			if opt == "ro" {
				ro = true
			}
		}
		c.Mounts = append(c.Mounts, model.Mount{
			HostPath:      m.Source,
			ContainerPath: m.Destination,
			ReadOnly:      ro,
		})
	}

	return c, nil
}
