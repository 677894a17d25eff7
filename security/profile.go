package security

import (
	"fmt"
	"sync"

	"github.com/vesselrun/vessel/security/seccomp"
)

// Profile is a named security posture. It is a value type: many containers
// may reference the same named profile, but applying it to a process is a
// one-time, irrevocable act per process.
type Profile struct {
	Name string `json:"name"`

	// Capabilities is the allow-list; everything else is dropped from
	// the bounding and effective sets before exec.
	Capabilities []string `json:"capabilities"`

	// Seccomp is the syscall filter installed after the capability drop.
	Seccomp *seccomp.Config `json:"seccomp,omitempty"`

	// MaskedPaths are replaced with no-access mounts inside the
	// container's mount namespace.
	MaskedPaths []string `json:"masked_paths,omitempty"`

	// ReadonlyPaths are remounted read-only inside the container.
	ReadonlyPaths []string `json:"readonly_paths,omitempty"`

	// NoNewPrivileges forbids the process and its descendants from
	// gaining privileges through setuid binaries or file capabilities.
	NoNewPrivileges bool `json:"no_new_privileges,omitempty"`

	// Privileged disables the entire profile application.
	Privileged bool `json:"privileged,omitempty"`
}

// Clone returns a deep copy so a registered profile stays immutable.
func (p *Profile) Clone() *Profile {
	out := *p
	out.Capabilities = append([]string(nil), p.Capabilities...)
	out.MaskedPaths = append([]string(nil), p.MaskedPaths...)
	out.ReadonlyPaths = append([]string(nil), p.ReadonlyPaths...)
	if p.Seccomp != nil {
		sc := *p.Seccomp
		sc.Rules = append([]seccomp.Rule(nil), p.Seccomp.Rules...)
		out.Seccomp = &sc
	}
	return &out
}

var (
	profilesMu sync.RWMutex
	profiles   = map[string]*Profile{}
)

// Register adds a named profile to the table. Registered profiles are
// immutable; re-registering a name is an error.
func Register(p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("security profile requires a name")
	}
	profilesMu.Lock()
	defer profilesMu.Unlock()
	if _, ok := profiles[p.Name]; ok {
		return fmt.Errorf("security profile %q already registered", p.Name)
	}
	profiles[p.Name] = p.Clone()
	return nil
}

// Lookup resolves a profile name. The empty name selects the default
// profile. The returned profile is a copy.
func Lookup(name string) (*Profile, error) {
	if name == "" {
		name = "default"
	}
	profilesMu.RLock()
	defer profilesMu.RUnlock()
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown security profile %q", name)
	}
	return p.Clone(), nil
}

// DefaultProfile is the posture applied when a spec names no profile.
//
// CAP_SYS_ADMIN stays in the allow-list and mount stays unfiltered because
// path masking runs after the capability drop and needs mount(2); the
// masked and read-only path set below closes the host surfaces that
// capability would otherwise expose through procfs and sysfs.
func DefaultProfile() *Profile {
	return &Profile{
		Name: "default",
		Capabilities: []string{
			"CAP_CHOWN",
			"CAP_DAC_OVERRIDE",
			"CAP_FSETID",
			"CAP_FOWNER",
			"CAP_NET_RAW",
			"CAP_SETGID",
			"CAP_SETUID",
			"CAP_SETPCAP",
			"CAP_SETFCAP",
			"CAP_NET_BIND_SERVICE",
			"CAP_SYS_CHROOT",
			"CAP_SYS_ADMIN",
			"CAP_KILL",
			"CAP_AUDIT_WRITE",
		},
		Seccomp: &seccomp.Config{
			DefaultAction: seccomp.ActAllow,
			Rules: []seccomp.Rule{
				{Syscall: "reboot", Action: seccomp.ActErrno},
				{Syscall: "swapon", Action: seccomp.ActErrno},
				{Syscall: "swapoff", Action: seccomp.ActErrno},
				{Syscall: "init_module", Action: seccomp.ActErrno},
				{Syscall: "finit_module", Action: seccomp.ActErrno},
				{Syscall: "delete_module", Action: seccomp.ActErrno},
				{Syscall: "kexec_load", Action: seccomp.ActErrno},
				{Syscall: "open_by_handle_at", Action: seccomp.ActErrno},
				{Syscall: "settimeofday", Action: seccomp.ActErrno},
				{Syscall: "clock_settime", Action: seccomp.ActErrno},
				{Syscall: "acct", Action: seccomp.ActErrno},
			},
		},
		MaskedPaths: []string{
			"/proc/kcore",
			"/proc/keys",
			"/proc/timer_list",
			"/proc/sched_debug",
			"/proc/sysrq-trigger",
			"/sys/firmware",
		},
		ReadonlyPaths: []string{
			"/proc/sys",
			"/proc/irq",
			"/proc/bus",
		},
		NoNewPrivileges: true,
	}
}

// PrivilegedProfile applies nothing: full capabilities, no filter, no
// masked paths.
func PrivilegedProfile() *Profile {
	return &Profile{
		Name:       "privileged",
		Privileged: true,
	}
}

func init() {
	if err := Register(DefaultProfile()); err != nil {
		panic(err)
	}
	if err := Register(PrivilegedProfile()); err != nil {
		panic(err)
	}
}
