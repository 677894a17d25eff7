package vessel

import (
	"time"

	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/configs"
)

// ExitStatus is the translated wait status of a container's init process.
type ExitStatus struct {
	// Code is the process's own exit code, or -1 if it was killed by a
	// signal.
	Code int `json:"code"`

	// Signal is the number of the signal that terminated the process, or
	// 0 for a clean exit.
	Signal int `json:"signal,omitempty"`

	// OOMKilled is set when the kernel's out-of-memory killer terminated
	// the process for breaching its memory ceiling.
	OOMKilled bool `json:"oom_killed,omitempty"`
}

// Snapshot is a copy-out view of a container for inspection. It shares no
// mutable state with the live container.
type Snapshot struct {
	ID     string `json:"id"`
	Status string `json:"status"`

	// Pid is the init process id, or -1 when no process is running.
	Pid        int               `json:"pid"`
	Spec       configs.Spec      `json:"spec"`
	CgroupPath string            `json:"cgroup_path,omitempty"`
	Namespaces map[string]string `json:"namespaces,omitempty"`
	ExitStatus *ExitStatus       `json:"exit_status,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
}

// A Container controls one isolated, resource-bounded process group. All
// lifecycle methods on the same Container are serialized; methods on
// different Containers proceed concurrently.
type Container interface {
	// ID returns the container's unique, immutable identifier.
	ID() string

	// Status returns the lifecycle state at the time of the call.
	Status() Status

	// Spec returns a copy of the immutable creation spec.
	Spec() configs.Spec

	// Snapshot returns a copy-out view of the container.
	Snapshot() *Snapshot

	// Start brings the container from Created (or Stopped, for a
	// restart) to Running: it acquires namespaces and a cgroup node,
	// applies the security profile in the child, and execs the spec's
	// command. On any failure every resource acquired during the attempt
	// is released before the error is returned.
	//
	// Errors: ResourceUnavailable, PermissionDenied, StartFailed,
	// InvalidStateTransition, SystemError.
	Start() error

	// Signal delivers sig to the init process.
	Signal(sig int) error

	// Stop requests termination: a graceful signal, then after the grace
	// period a forced kill. Stopping a container that is already stopped
	// is a no-op. Timeout is returned only if the process survives the
	// forced kill.
	Stop(grace time.Duration) error

	// Pause freezes every process in the container.
	Pause() error

	// Resume thaws a paused container.
	Resume() error

	// Wait blocks until the init process has exited and its resources
	// are released, then returns the exit status.
	Wait() (*ExitStatus, error)

	// ExitStatus returns the recorded status of the last run, or nil if
	// the container has not exited.
	ExitStatus() *ExitStatus

	// Stats returns a live resource-usage snapshot from the container's
	// cgroup node.
	Stats() (*cgroups.Usage, error)

	// Processes returns the pids attached to the container's cgroup, in
	// the host pid namespace.
	Processes() ([]int, error)

	// claimRemoval takes the Removing transition under the lifecycle
	// lock, so a removal cannot interleave with an in-flight start. It
	// keeps external packages from forging transitions.
	claimRemoval() error
}
