package vessel

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"

	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/cgroups/fs"
	"github.com/vesselrun/vessel/configs"
	"github.com/vesselrun/vessel/configs/validate"
	"github.com/vesselrun/vessel/image"
	"github.com/vesselrun/vessel/namespaces"
	"github.com/vesselrun/vessel/network"
	"github.com/vesselrun/vessel/security"
	"github.com/vesselrun/vessel/statestore"
	"github.com/vesselrun/vessel/system"
	"github.com/vesselrun/vessel/volumes"
)

// Config carries the runtime's host-level settings. The zero value is
// usable; empty fields take the defaults below.
type Config struct {
	// Root is the runtime state directory: the container database plus a
	// per-container scratch directory live under it.
	Root string `yaml:"root"`

	// CgroupRoot is the cgroup filesystem mount point.
	CgroupRoot string `yaml:"cgroup_root"`

	// CgroupParent is the node under which every container's cgroup is
	// created.
	CgroupParent string `yaml:"cgroup_parent"`

	// ImageRoot is the directory of locally unpacked images.
	ImageRoot string `yaml:"image_root"`

	// InitPath is the binary reexeced as the container init process;
	// InitArgs is its argument vector. The binary must dispatch to
	// StartInitialization when invoked this way.
	InitPath string   `yaml:"init_path"`
	InitArgs []string `yaml:"init_args"`

	// StopGrace is the grace period used when a stop request does not
	// name one.
	StopGrace time.Duration `yaml:"stop_grace"`

	Logger *logrus.Logger `yaml:"-"`
}

const defaultStateRoot = "/var/lib/vessel"

func (c *Config) withDefaults() {
	if c.Root == "" {
		c.Root = defaultStateRoot
	}
	if c.CgroupRoot == "" {
		c.CgroupRoot = "/sys/fs/cgroup"
	}
	if c.CgroupParent == "" {
		c.CgroupParent = "vessel"
	}
	if c.ImageRoot == "" {
		c.ImageRoot = filepath.Join(c.Root, "images")
	}
	if c.InitPath == "" {
		c.InitPath = "/proc/self/exe"
		if len(c.InitArgs) == 0 {
			c.InitArgs = []string{"init"}
		}
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
}

// Runtime is the lifecycle engine: it owns the registry, the state store
// and the external-manager boundaries, and hands out Containers.
type Runtime struct {
	config     Config
	logger     *logrus.Entry
	registry   *Registry
	store      *statestore.Store
	images     image.Resolver
	volumes    volumes.Resolver
	namespaces *namespaces.Manager
	validator  *validate.Validator
	events     *eventBus

	closeOnce sync.Once
}

// New opens the state store under cfg.Root and rehydrates every persisted
// container. Records claiming a live process are only trusted after the
// pid and its start time check out; everything else is restored in a
// terminal state.
func New(cfg Config) (*Runtime, error) {
	cfg.withDefaults()
	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return nil, newSystemError(err)
	}
	store, err := statestore.Open(filepath.Join(cfg.Root, "state.db"))
	if err != nil {
		return nil, newSystemError(err)
	}
	rt := &Runtime{
		config:     cfg,
		logger:     cfg.Logger.WithField("component", "runtime"),
		registry:   NewRegistry(),
		store:      store,
		images:     image.NewLocalResolver(cfg.ImageRoot),
		volumes:    volumes.NewHostResolver(),
		namespaces: namespaces.NewManager(),
		validator:  validate.New(),
		events:     newEventBus(),
	}
	if err := rt.rehydrate(); err != nil {
		store.Close()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) containerDir(id string) string {
	return filepath.Join(r.config.Root, "containers", id)
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create validates the spec, snapshots it and registers a new container in
// the Created state. No kernel resources are touched.
func (r *Runtime) Create(spec *configs.Spec) (string, error) {
	if err := r.validator.Validate(spec); err != nil {
		return "", newGenericError(err, InvalidSpec)
	}
	if _, err := security.Lookup(spec.Profile); err != nil {
		return "", newGenericError(err, InvalidSpec)
	}
	if _, err := network.GetStrategy(spec.Network); err != nil {
		return "", newGenericError(err, InvalidSpec)
	}
	id := newID()
	c := newContainer(r, id, spec, Created)
	if err := r.registry.Add(c); err != nil {
		return "", err
	}
	c.persist()
	r.events.publish(EventCreated, id)
	r.logger.WithField("container", id).Info("container created")
	return id, nil
}

// lookup resolves an id or unique id prefix to a container.
func (r *Runtime) lookup(id string) (Container, error) {
	if id == "" {
		return nil, newGenericErrorf(InvalidSpec, "container id required")
	}
	if c, err := r.registry.Get(id); err == nil {
		return c, nil
	}
	matches := r.registry.List(func(c Container) bool {
		return strings.HasPrefix(c.ID(), id)
	})
	switch len(matches) {
	case 0:
		return nil, newGenericErrorf(NotFound, "container %s does not exist", id)
	case 1:
		return matches[0], nil
	default:
		return nil, newGenericErrorf(Conflict,
			"container id %s is ambiguous: %d matches", id, len(matches))
	}
}

// Get returns the container registered under id or a unique prefix of it.
func (r *Runtime) Get(id string) (Container, error) {
	return r.lookup(id)
}

func (r *Runtime) Start(id string) error {
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	return c.Start()
}

// Stop terminates the container; grace <= 0 selects the configured
// default grace period.
func (r *Runtime) Stop(id string, grace time.Duration) error {
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	if grace <= 0 {
		grace = r.config.StopGrace
	}
	return c.Stop(grace)
}

func (r *Runtime) Signal(id string, sig int) error {
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	return c.Signal(sig)
}

func (r *Runtime) Pause(id string) error {
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	return c.Pause()
}

func (r *Runtime) Resume(id string) error {
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	return c.Resume()
}

func (r *Runtime) Wait(id string) (*ExitStatus, error) {
	c, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return c.Wait()
}

func (r *Runtime) Stats(id string) (*cgroups.Usage, error) {
	c, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return c.Stats()
}

func (r *Runtime) Inspect(id string) (*Snapshot, error) {
	c, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return c.Snapshot(), nil
}

// List returns snapshots of the registered containers, all of them or
// only those currently holding a process.
func (r *Runtime) List(all bool) []*Snapshot {
	var filter Filter
	if !all {
		filter = func(c Container) bool {
			switch c.Status() {
			case Running, Paused, Restarting:
				return true
			}
			return false
		}
	}
	containers := r.registry.List(filter)
	out := make([]*Snapshot, 0, len(containers))
	for _, c := range containers {
		out = append(out, c.Snapshot())
	}
	return out
}

// Events subscribes to the lifecycle event stream. The cancel func drops
// the subscription and closes the channel.
func (r *Runtime) Events() (<-chan Event, func()) {
	return r.events.Subscribe()
}

// Remove deletes a container and its persisted state. Only containers
// holding no kernel resources are removable; force first stops a running
// one. A container that was created but never started holds nothing and
// is always removable.
func (r *Runtime) Remove(id string, force bool) error {
	c, err := r.lookup(id)
	if err != nil {
		return err
	}
	cid := c.ID()
	if force {
		switch c.Status() {
		case Running, Paused, Restarting:
			if err := c.Stop(r.config.StopGrace); err != nil {
				return err
			}
		}
	}
	if err := c.claimRemoval(); err != nil {
		return err
	}
	r.registry.purge(cid)
	if err := r.store.Delete(cid); err != nil {
		r.logger.WithError(err).WithField("container", cid).Error("delete state record")
	}
	_ = os.RemoveAll(r.containerDir(cid))
	r.events.publish(EventRemoved, cid)
	r.logger.WithField("container", cid).Info("container removed")
	return nil
}

// Close releases the runtime's own resources without touching containers:
// detached ones keep running and will be adopted by the next runtime.
func (r *Runtime) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.events.close()
		err = r.store.Close()
	})
	return err
}

// Shutdown stops every live container with the default grace period, then
// closes the runtime.
func (r *Runtime) Shutdown() error {
	live := r.registry.List(func(c Container) bool {
		switch c.Status() {
		case Running, Paused, Restarting:
			return true
		}
		return false
	})
	var wg sync.WaitGroup
	for _, c := range live {
		wg.Add(1)
		go func(c Container) {
			defer wg.Done()
			if err := c.Stop(r.config.StopGrace); err != nil {
				r.logger.WithError(err).WithField("container", c.ID()).Error("stopping at shutdown")
			}
		}(c)
	}
	wg.Wait()
	return r.Close()
}

// rehydrate rebuilds the registry from the state store. A corrupt record
// poisons only its own container, which is restored as Dead.
func (r *Runtime) rehydrate() error {
	records, corrupt, err := r.store.List()
	if err != nil {
		return newSystemError(err)
	}
	for _, id := range corrupt {
		r.logger.WithField("container", id).Error("state record corrupt; marking container dead")
		dead := &statestore.Record{
			ID:       id,
			Spec:     &configs.Spec{},
			Status:   Dead.String(),
			Exited:   true,
			ExitCode: -1,
		}
		if err := r.store.Save(dead); err != nil {
			r.logger.WithError(err).Error("rewrite corrupt record")
		}
		records = append(records, dead)
	}
	for _, rec := range records {
		if err := r.restoreContainer(rec); err != nil {
			r.logger.WithError(err).WithField("container", rec.ID).Error("restore container")
		}
	}
	return nil
}

func (r *Runtime) restoreContainer(rec *statestore.Record) error {
	status := ParseStatus(rec.Status)
	switch status {
	case Removing:
		// the previous daemon died mid-remove; finish the job
		return r.store.Delete(rec.ID)
	case Running, Paused, Restarting:
		if r.initAlive(rec) {
			return r.adoptLive(rec, status)
		}
		r.logger.WithField("container", rec.ID).Warn("recorded init process is gone; marking container dead")
		status = Dead
	}
	spec := rec.Spec
	if spec == nil {
		spec = &configs.Spec{}
	}
	c := newContainer(r, rec.ID, spec, status)
	c.state.restore(rec.CreatedAt, rec.StartedAt, rec.FinishedAt)
	if rec.Exited {
		c.exitStatus = &ExitStatus{
			Code:      rec.ExitCode,
			Signal:    rec.ExitSignal,
			OOMKilled: rec.OOMKilled,
		}
	}
	if err := r.registry.Add(c); err != nil {
		return err
	}
	if status != ParseStatus(rec.Status) {
		c.persist()
	}
	return nil
}

// initAlive reports whether the record's init process still exists as the
// same instance: pid recycling fails the start-time comparison.
func (r *Runtime) initAlive(rec *statestore.Record) bool {
	if rec.Pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(rec.Pid))
	if err != nil || !ok {
		return false
	}
	st, err := system.GetProcessStartTime(rec.Pid)
	return err == nil && st == rec.InitStartTime
}

// adoptLive re-attaches to a container whose init survived the daemon
// restart. The process is not our child, so its exit is observed by
// polling and the real wait status is unknowable.
func (r *Runtime) adoptLive(rec *statestore.Record, status Status) error {
	spec := rec.Spec
	if spec == nil {
		spec = &configs.Spec{}
	}
	c := newContainer(r, rec.ID, spec, status)
	c.state.restore(rec.CreatedAt, rec.StartedAt, rec.FinishedAt)

	proc := &restoredProcess{processPid: rec.Pid, started: rec.InitStartTime}
	ns, err := r.namespaces.Acquire(c.id, spec.Namespaces)
	if err == nil {
		err = ns.Bind(rec.Pid)
	}
	if err != nil {
		// the container runs on without pinned handles
		r.logger.WithError(err).WithField("container", rec.ID).Warn("rebinding namespaces")
		ns = nil
	}
	cg := fs.NewWithRoot(r.config.CgroupRoot, r.config.CgroupParent, c.id)

	c.initProcess = proc
	c.initStart = rec.InitStartTime
	c.ns = ns
	c.cgroup = cg
	c.netState = rec.Network
	c.exitCh = make(chan struct{})

	if err := r.registry.Add(c); err != nil {
		if ns != nil {
			ns.Release()
		}
		return err
	}
	r.logger.WithFields(logrus.Fields{
		"container": rec.ID,
		"pid":       rec.Pid,
	}).Info("adopted live container")
	go c.reap(proc, ns, cg, rec.Network, nil, c.exitCh)
	return nil
}
