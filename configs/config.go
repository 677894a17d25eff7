package configs

// NamespaceType names a kernel namespace kind.
type NamespaceType string

const (
	NEWPID  NamespaceType = "pid"
	NEWNS   NamespaceType = "mnt"
	NEWNET  NamespaceType = "net"
	NEWUTS  NamespaceType = "uts"
	NEWIPC  NamespaceType = "ipc"
	NEWUSER NamespaceType = "user"
)

// NamespaceTypes returns every supported namespace kind.
func NamespaceTypes() []NamespaceType {
	return []NamespaceType{NEWUSER, NEWPID, NEWNS, NEWNET, NEWUTS, NEWIPC}
}

// Resources are the kernel-enforced limits applied to a container's cgroup
// node before any process is attached to it.
type Resources struct {
	// Memory is the absolute memory ceiling in bytes. Breaching it
	// triggers the kernel's own OOM handling, not an application check.
	// Zero means unlimited.
	Memory int64 `json:"memory,omitempty"`

	// CpuQuota is the allowed cpu time in microseconds per CpuPeriod.
	// Zero means unlimited.
	CpuQuota int64 `json:"cpu_quota,omitempty"`

	// CpuPeriod is the scheduling period in microseconds. Zero selects
	// the kernel default.
	CpuPeriod int64 `json:"cpu_period,omitempty"`

	// CpuShares is the relative weight against sibling cgroups.
	CpuShares int64 `json:"cpu_shares,omitempty"`

	// PidsLimit is the maximum number of tasks. Zero means unlimited.
	PidsLimit int64 `json:"pids_limit,omitempty"`
}

// Mount binds a host path into the container's filesystem tree.
type Mount struct {
	Source string `json:"source"`
	Target string `json:"target"`

	// Mode is "ro" or "rw". Empty means "rw".
	Mode string `json:"mode,omitempty"`
}

// RestartPolicy controls whether the supervisor brings the init process
// back up after it exits.
type RestartPolicy struct {
	// Policy is one of "no", "on-failure", "always". Empty means "no".
	Policy string `json:"policy,omitempty"`

	// MaxRetries bounds consecutive restarts for "on-failure". Zero
	// means unbounded.
	MaxRetries int `json:"max_retries,omitempty"`
}

// Spec is the immutable creation request for a container. It is snapshotted
// at create time; later mutation by the caller has no effect on the
// container.
type Spec struct {
	// Image is the image reference resolved through the image manager to
	// a root filesystem. Ignored if Rootfs is set.
	Image string `json:"image,omitempty"`

	// Rootfs is a pre-resolved root filesystem path. When set, no image
	// resolution takes place.
	Rootfs string `json:"rootfs,omitempty"`

	// Args is the command to exec inside the container, argv[0] first.
	Args []string `json:"args"`

	// Env is the environment for the init process, in KEY=VALUE form.
	Env []string `json:"env,omitempty"`

	// WorkingDir is the initial working directory inside the rootfs.
	WorkingDir string `json:"working_dir,omitempty"`

	// Hostname is set inside the uts namespace when one is requested.
	Hostname string `json:"hostname,omitempty"`

	// Namespaces are the isolation boundaries to establish. An empty
	// list defaults to every supported kind except user.
	Namespaces []NamespaceType `json:"namespaces,omitempty"`

	Resources *Resources `json:"resources,omitempty"`

	// Profile names the security profile to apply. Empty selects the
	// default profile.
	Profile string `json:"profile,omitempty"`

	Mounts []Mount `json:"mounts,omitempty"`

	// Network names the attachment strategy ("none", "loopback",
	// "veth"). Empty means "none".
	Network string `json:"network,omitempty"`

	// Detach runs the container in its own session with stdio redirected
	// to the state directory instead of inherited.
	Detach bool `json:"detach,omitempty"`

	// AutoRemove removes the container record as soon as it stops.
	AutoRemove bool `json:"auto_remove,omitempty"`

	// Tty allocates a pty for the init process.
	Tty bool `json:"tty,omitempty"`

	Restart RestartPolicy `json:"restart,omitempty"`

	// ParentDeathSignal is delivered to the init process if the daemon
	// dies. Zero defaults to SIGKILL.
	ParentDeathSignal int `json:"parent_death_signal,omitempty"`
}

// DefaultNamespaces is the namespace set used when the spec names none.
func DefaultNamespaces() []NamespaceType {
	return []NamespaceType{NEWPID, NEWNS, NEWNET, NEWUTS, NEWIPC}
}

// Clone returns a deep copy of the spec.
func (s *Spec) Clone() *Spec {
	out := *s
	out.Args = append([]string(nil), s.Args...)
	out.Env = append([]string(nil), s.Env...)
	out.Namespaces = append([]NamespaceType(nil), s.Namespaces...)
	out.Mounts = append([]Mount(nil), s.Mounts...)
	if s.Resources != nil {
		res := *s.Resources
		out.Resources = &res
	}
	return &out
}

// HasNamespace reports whether the spec requests the given namespace kind,
// taking the default set into account.
func (s *Spec) HasNamespace(t NamespaceType) bool {
	nss := s.Namespaces
	if len(nss) == 0 {
		nss = DefaultNamespaces()
	}
	for _, ns := range nss {
		if ns == t {
			return true
		}
	}
	return false
}
