// Package runtime carries the process-wide configuration that the teacher
// (sysbox-runc) scattered across package-level globals and conditional
// rootless/privileged branches. Every collaborator downstream is
// constructed with a *Runtime instead of reading the environment itself.
package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// CapabilityProfile answers "what is this process allowed to do" once, at
// startup, instead of scattering `if rootless { ... } else { ... }` branches
// through every builder. Builders query it at each decision point.
type CapabilityProfile struct {
	// Privileged is true when running as host uid 0 outside any user
	// namespace: mount(2) is unrestricted and cgroup_root is the real
	// /sys/fs/cgroup hierarchy.
	Privileged bool

	// CanMount is true if the process may call mount(2) without first
	// creating a privileged-capable user namespace. Detect sets it only
	// for the Privileged profile; a rootless process gets false even when
	// it already runs inside a CAP_SYS_ADMIN-capable userns.
	CanMount bool

	// CanCreateVeth is true if the process may create host-side network
	// devices (bridge, veth). False forces net_mode=none (loopback only).
	CanCreateVeth bool

	// CgroupRoot is the cgroup-v2 mount point to create the mini-docker
	// subtree under: "/sys/fs/cgroup" when Privileged, else the
	// user-delegated subtree under systemd's user@<uid>.service slice.
	CgroupRoot string
}

// Detect checks the current process's euid and returns the capability
// profile to operate under. For a non-privileged profile it computes the
// user-delegated cgroup path without checking that it exists. rootlessRequested
// mirrors the --rootless CLI flag; it is honoured even when running as
// root, since a caller may want to exercise the unprivileged code path.
func Detect(rootlessRequested bool) CapabilityProfile {
	euid := os.Geteuid()
	privileged := euid == 0 && !rootlessRequested

	if privileged {
		return CapabilityProfile{
			Privileged:    true,
			CanMount:      true,
			CanCreateVeth: true,
			CgroupRoot:    "/sys/fs/cgroup",
		}
	}

	return CapabilityProfile{
		Privileged:    false,
		CanMount:      false,
		CanCreateVeth: false,
		CgroupRoot:    delegatedCgroupRoot(os.Getuid()),
	}
}

func delegatedCgroupRoot(uid int) string {
	return filepath.Join(
		"/sys/fs/cgroup/user.slice",
		fmt.Sprintf("user-%d.slice", uid),
		fmt.Sprintf("user@%d.service", uid),
		"app.slice",
	)
}

// Runtime is the explicit configuration object threaded through every
// collaborator constructor. It replaces the module-global logging/debug
// state the teacher used.
type Runtime struct {
	Log        *logrus.Entry
	Debug      bool
	StateRoot  string
	Caps       CapabilityProfile
	RootlessOn bool
}

// New builds a Runtime from the environment variables of spec.md §6 plus
// the --rootless flag decided by the CLI layer. It is called once per CLI
// command, by runtimeFrom in cmd/minidocker/app.go.
func New(rootlessRequested bool) (*Runtime, error) {
	level := logLevel()
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	debug := truthy(os.Getenv("MINI_DOCKER_DEBUG"))
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	caps := Detect(rootlessRequested)

	root, err := stateRoot(caps.Privileged)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Log:        logrus.NewEntry(logger),
		Debug:      debug,
		StateRoot:  root,
		Caps:       caps,
		RootlessOn: !caps.Privileged,
	}, nil
}

func stateRoot(privileged bool) (string, error) {
	if v := os.Getenv("MINI_DOCKER_HOST"); v != "" {
		return v, nil
	}
	if privileged {
		return "/var/lib/mini-docker", nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mini-docker"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "mini-docker"), nil
}

func logLevel() logrus.Level {
	switch strings.ToLower(os.Getenv("MINI_DOCKER_LOG_LEVEL")) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
