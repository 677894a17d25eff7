package cgroups

import (
	"errors"

	"github.com/vesselrun/vessel/configs"
)

// FreezerState mirrors the kernel freezer subsystem states.
type FreezerState string

const (
	Frozen FreezerState = "FROZEN"
	Thawed FreezerState = "THAWED"
)

var (
	// ErrNotFound means the control-group filesystem (or a required
	// subsystem) is not mounted or not delegated to this process.
	ErrNotFound = errors.New("cgroup: subsystem not mounted")

	// ErrBusy means Destroy was called while processes were still
	// attached to the node. Destroying a live node is a programmer
	// error; the caller must wait for the process set to drain.
	ErrBusy = errors.New("cgroup: processes still attached")
)

// IsNotFound reports whether err stems from a missing cgroup mount.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Usage is a read-only snapshot of a node's live resource accounting.
type Usage struct {
	// MemoryBytes is current memory charged to the node.
	MemoryBytes uint64 `json:"memory_bytes"`

	// MemoryMaxBytes is the high-water mark since creation.
	MemoryMaxBytes uint64 `json:"memory_max_bytes"`

	// CpuNanos is total cpu time consumed by the node's tasks.
	CpuNanos uint64 `json:"cpu_nanos"`

	// Pids is the current task count.
	Pids uint64 `json:"pids"`

	// OomKills counts kernel OOM kills charged to the node.
	OomKills uint64 `json:"oom_kills"`
}

// Manager owns one resource-control node. The node is created empty, has
// its limits applied before any process is attached, and is destroyed only
// after the attached process set has fully exited.
type Manager interface {
	// Create makes the node and applies the given limits. A partially
	// applied limit set is rolled back to no-limits before the error
	// returns.
	Create(res *configs.Resources) error

	// Apply attaches pid to the node.
	Apply(pid int) error

	// Set replaces the node's limits.
	Set(res *configs.Resources) error

	// GetUsage reads a live accounting snapshot.
	GetUsage() (*Usage, error)

	// GetPids lists the tasks currently attached.
	GetPids() ([]int, error)

	// Freeze toggles the freezer subsystem for the node.
	Freeze(state FreezerState) error

	// Destroy removes the node. Fails with ErrBusy while tasks remain.
	Destroy() error

	// Path returns the node's path relative to the cgroup mount root.
	Path() string
}
