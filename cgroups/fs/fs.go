package fs

import (
	"os"
	"path/filepath"
	"time"

	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/configs"
)

// subsystem is one cgroup v1 controller handled by this manager.
type subsystem interface {
	// Name is the controller's mount directory name.
	Name() string

	// Set writes the controller's limit files under path.
	Set(path string, res *configs.Resources) error

	// GetUsage folds the controller's accounting files into u.
	GetUsage(path string, u *cgroups.Usage) error
}

// subsystems are applied in this order; memory first so that a ceiling is
// in place before any task can be attached.
var subsystems = []subsystem{
	&memoryGroup{},
	&cpuGroup{},
	&cpuacctGroup{},
	&pidsGroup{},
	&freezerGroup{},
}

// Manager drives one container's node in each cgroup v1 subsystem tree.
// The mount root is a field so tests can point it at a scratch directory.
type Manager struct {
	root   string // cgroup filesystem mount point
	cgroup string // node path relative to each subsystem root
}

var _ cgroups.Manager = (*Manager)(nil)

const defaultRoot = "/sys/fs/cgroup"

// New returns a manager for the node <parent>/<id> under every subsystem.
func New(parent, id string) *Manager {
	return NewWithRoot(defaultRoot, parent, id)
}

func NewWithRoot(root, parent, id string) *Manager {
	if parent == "" {
		parent = "vessel"
	}
	return &Manager{
		root:   root,
		cgroup: filepath.Join(parent, id),
	}
}

func (m *Manager) Path() string {
	return m.cgroup
}

func (m *Manager) subsystemPath(s subsystem) string {
	return filepath.Join(m.root, s.Name(), m.cgroup)
}

// Create makes the node in every subsystem and applies the limits. If any
// limit is rejected the whole node is torn down so that no half-applied
// limit set survives.
func (m *Manager) Create(res *configs.Resources) error {
	if _, err := os.Stat(m.root); err != nil {
		return cgroups.ErrNotFound
	}
	created := []string{}
	for _, s := range subsystems {
		path := m.subsystemPath(s)
		if err := os.MkdirAll(path, 0o755); err != nil {
			m.removePaths(created)
			return wrapNotFound(err)
		}
		created = append(created, path)
		if err := s.Set(path, res); err != nil {
			m.removePaths(created)
			return err
		}
	}
	return nil
}

// Apply attaches pid to the node in every subsystem.
func (m *Manager) Apply(pid int) error {
	for _, s := range subsystems {
		if err := writeFileInt(m.subsystemPath(s), "cgroup.procs", int64(pid)); err != nil {
			return err
		}
	}
	return nil
}

// Set replaces the node's limits. A partial application is rolled back to
// no limits rather than left half-applied.
func (m *Manager) Set(res *configs.Resources) error {
	for i, s := range subsystems {
		if err := s.Set(m.subsystemPath(s), res); err != nil {
			none := &configs.Resources{}
			for j := 0; j <= i; j++ {
				// best effort: the node is reverting to unlimited
				_ = subsystems[j].Set(m.subsystemPath(subsystems[j]), none)
			}
			return err
		}
	}
	return nil
}

func (m *Manager) GetUsage() (*cgroups.Usage, error) {
	u := &cgroups.Usage{}
	for _, s := range subsystems {
		if err := s.GetUsage(m.subsystemPath(s), u); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// GetPids returns the tasks attached to the node, read from the freezer
// subsystem which every attached task joined.
func (m *Manager) GetPids() ([]int, error) {
	return readProcs(filepath.Join(m.root, "freezer", m.cgroup))
}

func (m *Manager) Freeze(state cgroups.FreezerState) error {
	path := filepath.Join(m.root, "freezer", m.cgroup)
	if err := writeFile(path, "freezer.state", string(state)); err != nil {
		return err
	}
	// the kernel reports FREEZING until every task is frozen
	for {
		current, err := readFile(path, "freezer.state")
		if err != nil {
			return err
		}
		if current == string(state) {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

// Destroy removes the node from every subsystem. It refuses to act while
// tasks remain attached.
func (m *Manager) Destroy() error {
	pids, err := m.GetPids()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if len(pids) > 0 {
		return cgroups.ErrBusy
	}
	var first error
	for _, s := range subsystems {
		if err := removePath(m.subsystemPath(s)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manager) removePaths(paths []string) {
	for _, p := range paths {
		_ = removePath(p)
	}
}

func wrapNotFound(err error) error {
	if os.IsNotExist(err) || os.IsPermission(err) {
		return cgroups.ErrNotFound
	}
	return err
}
