package namespaces

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vesselrun/vessel/configs"
)

// ErrUnavailable is returned when namespace handles cannot be allocated on
// this host, either for lack of privilege or an exhausted kernel limit.
type ErrUnavailable struct {
	Type configs.NamespaceType
	Err  error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("namespace %s unavailable: %v", e.Type, e.Err)
}

func (e *ErrUnavailable) Unwrap() error { return e.Err }

var cloneFlags = map[configs.NamespaceType]uintptr{
	configs.NEWPID:  unix.CLONE_NEWPID,
	configs.NEWNS:   unix.CLONE_NEWNS,
	configs.NEWNET:  unix.CLONE_NEWNET,
	configs.NEWUTS:  unix.CLONE_NEWUTS,
	configs.NEWIPC:  unix.CLONE_NEWIPC,
	configs.NEWUSER: unix.CLONE_NEWUSER,
}

// procFile is the /proc/<pid>/ns entry name for each namespace kind.
var procFile = map[configs.NamespaceType]string{
	configs.NEWPID:  "pid",
	configs.NEWNS:   "mnt",
	configs.NEWNET:  "net",
	configs.NEWUTS:  "uts",
	configs.NEWIPC:  "ipc",
	configs.NEWUSER: "user",
}

// setupOrder sorts namespace kinds so that a user namespace, whose uid
// mapping the others may depend on, is always established first, and the
// mount namespace comes before the kinds whose setup happens under the new
// root.
var setupOrder = map[configs.NamespaceType]int{
	configs.NEWUSER: 0,
	configs.NEWNS:   1,
	configs.NEWUTS:  2,
	configs.NEWIPC:  3,
	configs.NEWNET:  4,
	configs.NEWPID:  5,
}

// A Set bundles the namespace handles held for one container. It is owned
// exclusively by that container's supervisor: handles are bound once the
// init process exists and released on every exit path. Release is
// idempotent.
type Set struct {
	containerID string
	types       []configs.NamespaceType

	mu    sync.Mutex
	files map[configs.NamespaceType]*os.File
	bound bool
}

// Manager allocates namespace sets. It performs the host-capability checks
// once so that Acquire can fail fast instead of surfacing a clone failure
// after the child has been forked.
type Manager struct {
	// euid of the daemon; creating most namespace kinds without a user
	// namespace requires root.
	euid int
}

func NewManager() *Manager {
	return &Manager{euid: os.Geteuid()}
}

// Acquire validates and reserves the requested namespace kinds for the
// container. The returned set carries no kernel handles yet; they are bound
// from the proc filesystem once the init process has been cloned. On any
// validation failure nothing is retained.
func (m *Manager) Acquire(containerID string, types []configs.NamespaceType) (*Set, error) {
	if len(types) == 0 {
		types = configs.DefaultNamespaces()
	}
	seen := make(map[configs.NamespaceType]bool)
	ordered := make([]configs.NamespaceType, 0, len(types))
	hasUser := false
	for _, t := range types {
		if _, ok := cloneFlags[t]; !ok {
			return nil, fmt.Errorf("unknown namespace type %q", t)
		}
		if seen[t] {
			return nil, fmt.Errorf("duplicate namespace type %q", t)
		}
		seen[t] = true
		if t == configs.NEWUSER {
			hasUser = true
		}
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return setupOrder[ordered[i]] < setupOrder[ordered[j]]
	})
	if m.euid != 0 && !hasUser {
		return nil, &ErrUnavailable{
			Type: ordered[0],
			Err:  fmt.Errorf("creating namespaces requires root or a user namespace"),
		}
	}
	return &Set{
		containerID: containerID,
		types:       ordered,
		files:       make(map[configs.NamespaceType]*os.File),
	}, nil
}

// Types returns the namespace kinds in setup order: user first if present,
// then mount before the rest.
func (s *Set) Types() []configs.NamespaceType {
	return append([]configs.NamespaceType(nil), s.types...)
}

// Contains reports whether the set holds the given kind.
func (s *Set) Contains(t configs.NamespaceType) bool {
	for _, st := range s.types {
		if st == t {
			return true
		}
	}
	return false
}

// CloneFlags returns the clone(2) flag mask establishing every namespace in
// the set.
func (s *Set) CloneFlags() uintptr {
	var flags uintptr
	for _, t := range s.types {
		flags |= cloneFlags[t]
	}
	return flags
}

// Bind opens the /proc/<pid>/ns handle for every namespace in the set,
// pinning the namespaces to this set even if the process exits. A partial
// failure closes whatever was opened before the error returns.
func (s *Set) Bind(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound {
		return fmt.Errorf("namespace set for %s already bound", s.containerID)
	}
	for _, t := range s.types {
		path := fmt.Sprintf("/proc/%d/ns/%s", pid, procFile[t])
		f, err := os.OpenFile(path, os.O_RDONLY|unix.O_CLOEXEC, 0)
		if err != nil {
			s.releaseLocked()
			return &ErrUnavailable{Type: t, Err: err}
		}
		s.files[t] = f
	}
	s.bound = true
	return nil
}

// Paths returns the proc path of each bound namespace handle, keyed by
// kind. Empty until Bind has succeeded.
func (s *Set) Paths() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.files))
	for t, f := range s.files {
		out[string(t)] = f.Name()
	}
	return out
}

// Release closes every held handle. It is safe to call multiple times and
// after a partial Bind.
func (s *Set) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

func (s *Set) releaseLocked() error {
	var first error
	for t, f := range s.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.files, t)
	}
	s.bound = false
	return first
}
