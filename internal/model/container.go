// Package model holds the persistent data-model types of spec.md §3:
// Container, Pod, Image, and the mount/limit value objects they embed.
// These are pure data; behaviour lives in internal/store (persistence),
// internal/launcher (lifecycle) and internal/manager (verbs).
package model

import "time"

// Status is a container's position in the state machine of spec.md §4.6.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusDead    Status = "dead"
)

// RootfsMode selects the filesystem builder strategy of spec.md §4.3.
type RootfsMode string

const (
	RootfsOverlay RootfsMode = "overlay"
	RootfsBind    RootfsMode = "bind"
)

// NetMode selects the network builder strategy of spec.md §4.4.
type NetMode struct {
	Mode  string // "none", "bridge", "pod"
	PodID string // set iff Mode == "pod"
}

func (n NetMode) String() string {
	if n.Mode == "pod" {
		return "pod(" + n.PodID + ")"
	}
	return n.Mode
}

// Limits is the optional resource ceiling of spec.md §3.
type Limits struct {
	MemoryBytes *int64 `json:"memory_bytes,omitempty"`
	CPUPercent  *int   `json:"cpu_percent,omitempty"`
	PidsMax     *int64 `json:"pids_max,omitempty"`
}

// Mount is one entry of the container's ordered bind-mount list.
type Mount struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	ReadOnly      bool   `json:"read_only"`
}

// Container is the persistent record of spec.md §3's Container entity.
type Container struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	ImageRoot string   `json:"image_root"`
	Argv      []string `json:"argv"`
	Env       []string `json:"env"`
	Workdir   string   `json:"workdir"`
	User      string   `json:"user"` // "uid[:gid]"
	Hostname  string   `json:"hostname"`

	Limits Limits  `json:"limits"`
	Mounts []Mount `json:"mounts"`

	NetMode     NetMode    `json:"net_mode"`
	IP          string     `json:"ip,omitempty"`
	RootfsMode  RootfsMode `json:"rootfs_mode"`
	Rootless    bool       `json:"rootless"`
	TTY         bool       `json:"tty"`
	Interactive bool       `json:"interactive"`

	Status    Status `json:"status"`
	Pid       int    `json:"pid"`
	ExitCode  int    `json:"exit_code"`
	OOMKilled bool   `json:"oom_killed,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	PodID string `json:"pod_id,omitempty"`

	// StartTimeTicks is /proc/<pid>/stat field 22 at the moment Pid was
	// recorded, used per invariant (5) to detect pid reuse on reattach.
	StartTimeTicks uint64 `json:"start_time_ticks,omitempty"`
}

// IsLive reports whether the container counts toward name-uniqueness
// (invariant 1: a name is unique among containers with status != dead).
func (c *Container) IsLive() bool { return c.Status != StatusDead }

// Pod is the persistent record of spec.md §3's Pod entity.
type Pod struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`

	// SharedNamespaces lists which of {net, ipc, uts} this pod pins.
	SharedNamespaces []string `json:"shared_namespaces"`
}

// Image is a registered tag -> rootfs mapping (spec.md §3's Image entity).
type Image struct {
	NameTag      string    `json:"name_tag"`
	RootPath     string    `json:"root_path"`
	DefaultCmd   []string  `json:"default_cmd,omitempty"`
	DefaultEnv   []string  `json:"default_env,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}
