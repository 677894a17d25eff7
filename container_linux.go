package vessel

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/vesselrun/vessel/cgroups"
	"github.com/vesselrun/vessel/cgroups/fs"
	"github.com/vesselrun/vessel/configs"
	"github.com/vesselrun/vessel/console"
	"github.com/vesselrun/vessel/namespaces"
	"github.com/vesselrun/vessel/network"
	"github.com/vesselrun/vessel/security"
	"github.com/vesselrun/vessel/statestore"
	"github.com/vesselrun/vessel/syncpipe"
)

const (
	// killConfirmTimeout bounds how long Stop waits for SIGKILL to take
	// effect before reporting Timeout. A process that survives this long
	// is stuck in the kernel.
	killConfirmTimeout = 10 * time.Second

	// cgroupDestroyRetries covers the window between SIGKILL delivery and
	// the last task leaving the cgroup.
	cgroupDestroyRetries = 50
)

type linuxContainer struct {
	id     string
	spec   *configs.Spec
	state  *stateManager
	rt     *Runtime
	logger *logrus.Entry

	// m serializes lifecycle operations on this container. Operations on
	// different containers never contend on it.
	m sync.Mutex

	// held only while the container is Running or Paused
	initProcess parentProcess
	initStart   string
	ns          *namespaces.Set
	cgroup      cgroups.Manager
	netState    *network.State
	console     *console.Console

	exitStatus *ExitStatus

	// exitCh is replaced on every start and closed by the reaper after
	// all resources of that run are released.
	exitCh chan struct{}

	stopRequested bool
	restartCount  int
}

var _ Container = (*linuxContainer)(nil)

func newContainer(rt *Runtime, id string, spec *configs.Spec, initial Status) *linuxContainer {
	c := &linuxContainer{
		id:     id,
		spec:   spec.Clone(),
		rt:     rt,
		logger: rt.logger.WithField("container", id),
	}
	c.state = newStateManager(initial, func(s Status) {
		c.logger.WithField("status", s).Debug("state changed")
	})
	return c
}

func (c *linuxContainer) ID() string {
	return c.id
}

func (c *linuxContainer) Status() Status {
	return c.state.Current()
}

func (c *linuxContainer) Spec() configs.Spec {
	return *c.spec.Clone()
}

func (c *linuxContainer) Snapshot() *Snapshot {
	c.m.Lock()
	defer c.m.Unlock()
	return c.snapshotLocked()
}

func (c *linuxContainer) snapshotLocked() *Snapshot {
	created, started, finished := c.state.timestamps()
	s := &Snapshot{
		ID:         c.id,
		Status:     c.state.Current().String(),
		Spec:       *c.spec.Clone(),
		CreatedAt:  created,
		StartedAt:  started,
		FinishedAt: finished,
	}
	s.Pid = -1
	if c.initProcess != nil {
		s.Pid = c.initProcess.pid()
	}
	if c.cgroup != nil {
		s.CgroupPath = c.cgroup.Path()
	}
	if c.ns != nil {
		s.Namespaces = c.ns.Paths()
	}
	if c.exitStatus != nil {
		e := *c.exitStatus
		s.ExitStatus = &e
	}
	return s
}

// Start brings the container up. On any failure every resource acquired
// during the attempt is released, in reverse acquisition order, before the
// error is returned; a failed start leaves the container exactly where it
// was.
func (c *linuxContainer) Start() error {
	c.m.Lock()
	defer c.m.Unlock()
	from := c.state.Current()
	switch from {
	case Created, Stopped:
	default:
		return newGenericErrorf(InvalidStateTransition,
			"cannot start container in state %s", from)
	}
	return c.startLocked(from)
}

func (c *linuxContainer) startLocked(from Status) error {
	spec := c.spec

	strategy, err := network.GetStrategy(spec.Network)
	if err != nil {
		return newGenericError(err, InvalidSpec)
	}
	profile, err := security.Lookup(spec.Profile)
	if err != nil {
		return newGenericError(err, InvalidSpec)
	}
	mounts, err := c.rt.volumes.ResolveMounts(spec)
	if err != nil {
		return newGenericError(err, InvalidSpec)
	}

	// the image is resolved on every start so a stopped container picks
	// up a re-pulled image on restart
	rootfs := spec.Rootfs
	env := append([]string(nil), spec.Env...)
	workdir := spec.WorkingDir
	if rootfs == "" {
		img, rerr := c.rt.images.Resolve(spec.Image)
		if rerr != nil {
			return newGenericError(rerr, StartFailed)
		}
		rootfs = img.RootfsPath
		env = append(append([]string(nil), img.DefaultEnv...), spec.Env...)
		if workdir == "" {
			workdir = img.DefaultWorkdir
		}
	}
	rootfs, err = filepath.Abs(rootfs)
	if err != nil {
		return newGenericError(err, InvalidSpec)
	}

	ns, err := c.rt.namespaces.Acquire(c.id, spec.Namespaces)
	if err != nil {
		return newGenericError(err, ResourceUnavailable)
	}

	cg := fs.NewWithRoot(c.rt.config.CgroupRoot, c.rt.config.CgroupParent, c.id)
	if err := cg.Create(spec.Resources); err != nil {
		ns.Release()
		if cgroups.IsNotFound(err) {
			return newGenericError(err, ResourceUnavailable)
		}
		return newSystemError(err)
	}

	var cons *console.Console
	if spec.Tty {
		if cons, err = console.New(); err != nil {
			c.unwindStart(nil, nil, nil, cg, ns)
			return newSystemError(err)
		}
	}

	pipe, err := syncpipe.New()
	if err != nil {
		c.unwindStart(nil, cons, nil, cg, ns)
		return newSystemError(err)
	}

	cmd, logFile, err := c.buildInitCommand(ns, pipe, cons)
	if err != nil {
		pipe.Close()
		c.unwindStart(nil, cons, nil, cg, ns)
		return newSystemError(err)
	}
	if err := cmd.Start(); err != nil {
		pipe.Close()
		if logFile != nil {
			logFile.Close()
		}
		c.unwindStart(nil, cons, nil, cg, ns)
		return newGenericError(err, StartFailed)
	}
	if logFile != nil {
		logFile.Close()
	}
	pipe.CloseChild()
	proc := &initProcess{cmd: cmd, pipe: pipe}

	// the child is blocked reading the pipe; attach it to the cgroup and
	// wire the network before letting it proceed, so every process it
	// ever spawns is already inside the limits
	if err := cg.Apply(proc.pid()); err != nil {
		c.unwindStart(proc, cons, nil, cg, ns)
		return newSystemError(err)
	}
	netState := &network.State{}
	if spec.HasNamespace(configs.NEWNET) {
		if err := strategy.Create(c.id, proc.pid(), netState); err != nil {
			c.unwindStart(proc, cons, netState, cg, ns)
			return newGenericError(err, ResourceUnavailable)
		}
	}
	startTime, err := proc.startTime()
	if err != nil {
		c.unwindStart(proc, cons, netState, cg, ns)
		return newSystemError(err)
	}

	// a detached container must outlive this process, so it gets no death
	// signal unless the spec asks for one
	pds := spec.ParentDeathSignal
	if pds == 0 && !spec.Detach {
		pds = int(unix.SIGKILL)
	}
	cfg := &initConfig{
		ID:                c.id,
		Args:              append([]string(nil), spec.Args...),
		Env:               env,
		WorkingDir:        workdir,
		Hostname:          spec.Hostname,
		Rootfs:            rootfs,
		Mounts:            mounts,
		Namespaces:        ns.Types(),
		Profile:           profile,
		Network:           netState,
		ParentDeathSignal: pds,
	}
	if cons != nil {
		cfg.ConsolePath = cons.Path()
	}

	// bind the namespace links while the child is still blocked reading
	// the pipe: once it execs, a fast command can exit and take its
	// /proc/<pid>/ns entries with it
	if err := ns.Bind(proc.pid()); err != nil {
		c.unwindStart(proc, cons, netState, cg, ns)
		return newGenericError(err, ResourceUnavailable)
	}
	if err := pipe.SendToChild(cfg); err != nil {
		c.unwindStart(proc, cons, netState, cg, ns)
		return newGenericError(err, StartFailed)
	}
	if err := pipe.AwaitChild(); err != nil {
		c.unwindStart(proc, cons, netState, cg, ns)
		if ie, ok := err.(*syncpipe.InitError); ok {
			switch ie.Kind {
			case syncpipe.KindSecurity:
				return newGenericError(err, PermissionDenied)
			case syncpipe.KindResource:
				return newGenericError(err, ResourceUnavailable)
			}
		}
		return newGenericError(err, StartFailed)
	}

	c.initProcess = proc
	c.initStart = startTime
	c.ns = ns
	c.cgroup = cg
	c.netState = netState
	c.console = cons
	c.exitStatus = nil
	c.exitCh = make(chan struct{})
	c.stopRequested = false

	if err := c.state.Transition(from, Running); err != nil {
		// removal won the race while we were setting up
		c.initProcess = nil
		c.initStart = ""
		c.ns, c.cgroup, c.netState, c.console = nil, nil, nil, nil
		c.exitCh = nil
		c.unwindStart(proc, cons, netState, cg, ns)
		return err
	}
	c.saveStateLocked()
	c.logger.WithField("pid", proc.pid()).Info("container started")
	c.rt.events.publish(EventStarted, c.id)
	go c.reap(proc, ns, cg, netState, cons, c.exitCh)
	return nil
}

// unwindStart releases everything a failed start attempt acquired, in
// reverse acquisition order.
func (c *linuxContainer) unwindStart(proc parentProcess, cons *console.Console, netState *network.State, cg cgroups.Manager, ns *namespaces.Set) {
	if proc != nil {
		_ = proc.terminate()
		if _, err := proc.wait(); err != nil {
			c.logger.WithError(err).Warn("reaping failed init process")
		}
	}
	if netState != nil && netState.Strategy != "" {
		if s, err := network.GetStrategy(netState.Strategy); err == nil {
			_ = s.Destroy(netState)
		}
	}
	if cons != nil {
		cons.Close()
	}
	if ns != nil {
		_ = ns.Release()
	}
	if cg != nil {
		c.destroyCgroup(cg)
	}
}

// destroyCgroup removes the container's cgroup node, retrying while tasks
// that just received SIGKILL are still draining out of it.
func (c *linuxContainer) destroyCgroup(cg cgroups.Manager) {
	for i := 0; i < cgroupDestroyRetries; i++ {
		err := cg.Destroy()
		if err == nil || cgroups.IsNotFound(err) {
			return
		}
		if err != cgroups.ErrBusy {
			c.logger.WithError(err).Warn("destroying cgroup")
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.logger.Warn("cgroup still busy after teardown retries")
}

func (c *linuxContainer) buildInitCommand(ns *namespaces.Set, pipe *syncpipe.Pipe, cons *console.Console) (*exec.Cmd, *os.File, error) {
	cmd := exec.Command(c.rt.config.InitPath, c.rt.config.InitArgs...)
	cmd.ExtraFiles = []*os.File{pipe.Child()}
	// ExtraFiles land at fd 3
	cmd.Env = []string{fmt.Sprintf("%s=3", initPipeEnv)}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: ns.CloneFlags(),
	}
	if ns.Contains(configs.NEWUSER) && os.Geteuid() != 0 {
		// rootless: map container root to the invoking user so init is
		// not left as the overflow uid
		cmd.SysProcAttr.UidMappings, cmd.SysProcAttr.GidMappings =
			identityMappings(os.Geteuid(), os.Getegid())
		cmd.SysProcAttr.GidMappingsEnableSetgroups = false
	}

	var logFile *os.File
	switch {
	case cons != nil:
		// the child opens the pty slave itself after setsid
	case c.spec.Detach:
		dir := c.rt.containerDir(c.id)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(filepath.Join(dir, "container.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, err
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	default:
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	return cmd, logFile, nil
}

// identityMappings is the single-entry uid/gid map of a rootless user
// namespace: container root is the invoking user and nothing else exists.
func identityMappings(uid, gid int) ([]syscall.SysProcIDMap, []syscall.SysProcIDMap) {
	return []syscall.SysProcIDMap{{ContainerID: 0, HostID: uid, Size: 1}},
		[]syscall.SysProcIDMap{{ContainerID: 0, HostID: gid, Size: 1}}
}

// reap waits for the init process, releases every kernel resource of the
// run, records the exit and only then closes exitCh: a Wait that returns
// is a promise that the namespaces and the cgroup node are gone.
func (c *linuxContainer) reap(proc parentProcess, ns *namespaces.Set, cg cgroups.Manager, netState *network.State, cons *console.Console, exitCh chan struct{}) {
	status, err := proc.wait()
	if err != nil {
		c.logger.WithError(err).Error("waiting on init process")
		status = &ExitStatus{Code: -1}
	}
	if u, uerr := cg.GetUsage(); uerr == nil && u.OomKills > 0 {
		status.OOMKilled = true
	}

	if netState != nil && netState.Strategy != "" {
		if s, serr := network.GetStrategy(netState.Strategy); serr == nil {
			_ = s.Destroy(netState)
		}
	}
	if ns != nil {
		_ = ns.Release()
	}
	c.destroyCgroup(cg)
	if cons != nil {
		cons.Close()
	}

	c.m.Lock()
	c.exitStatus = status
	c.initProcess = nil
	c.initStart = ""
	c.ns, c.cgroup, c.netState, c.console = nil, nil, nil, nil

	from := c.state.Current()
	stopReq := c.stopRequested
	c.stopRequested = false

	restarting := false
	if !stopReq && c.shouldRestart(status) {
		restarting = c.state.Transition(from, Restarting) == nil
	}
	if !restarting {
		if err := c.state.Transition(from, Stopped); err != nil {
			c.logger.WithError(err).Warn("recording exit")
		}
	}
	c.saveStateLocked()
	close(exitCh)
	autoRemove := c.spec.AutoRemove && !restarting
	c.m.Unlock()

	c.logger.WithFields(logrus.Fields{
		"code":       status.Code,
		"signal":     status.Signal,
		"oom_killed": status.OOMKilled,
	}).Info("container exited")

	if stopReq {
		c.rt.events.publish(EventStopped, c.id)
	} else {
		c.rt.events.publish(EventDied, c.id)
	}
	if restarting {
		go c.restart()
		return
	}
	if autoRemove {
		if err := c.rt.Remove(c.id, false); err != nil {
			c.logger.WithError(err).Warn("auto-remove failed")
		}
	}
}

func (c *linuxContainer) shouldRestart(status *ExitStatus) bool {
	switch c.spec.Restart.Policy {
	case "always":
		return true
	case "on-failure":
		if status.Code == 0 && status.Signal == 0 {
			c.restartCount = 0
			return false
		}
		if max := c.spec.Restart.MaxRetries; max > 0 && c.restartCount >= max {
			return false
		}
		return true
	}
	return false
}

// restartBackoff doubles per consecutive restart so a crash-looping
// command cannot saturate the host.
func restartBackoff(n int) time.Duration {
	d := 100 * time.Millisecond
	for i := 0; i < n && d < 5*time.Second; i++ {
		d *= 2
	}
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func (c *linuxContainer) restart() {
	time.Sleep(restartBackoff(c.restartCount))
	c.m.Lock()
	defer c.m.Unlock()
	if c.state.Current() != Restarting {
		// stopped or removed while the backoff ran
		return
	}
	c.restartCount++
	c.logger.WithField("attempt", c.restartCount).Info("restarting container")
	if err := c.startLocked(Restarting); err != nil {
		c.logger.WithError(err).Error("restart failed")
		if terr := c.state.Transition(Restarting, Stopped); terr == nil {
			c.saveStateLocked()
		}
	}
}

func (c *linuxContainer) Signal(sig int) error {
	c.m.Lock()
	defer c.m.Unlock()
	st := c.state.Current()
	if st != Running && st != Paused {
		return newGenericErrorf(Conflict, "cannot signal container in state %s", st)
	}
	if c.initProcess == nil {
		return newGenericErrorf(Conflict, "container %s has no running process", c.id)
	}
	if err := c.initProcess.signal(sig); err != nil {
		return newSystemError(err)
	}
	return nil
}

// Stop requests termination with a graceful signal, escalating to SIGKILL
// when the grace period expires. The call returns once the reaper has
// released the container's resources, or with Timeout if the process
// survives the forced kill.
func (c *linuxContainer) Stop(grace time.Duration) error {
	c.m.Lock()
	st := c.state.Current()
	switch st {
	case Stopped, Dead:
		c.m.Unlock()
		return nil
	case Created:
		c.m.Unlock()
		return newGenericErrorf(Conflict, "container %s has not been started", c.id)
	case Removing:
		c.m.Unlock()
		return newGenericErrorf(Conflict, "container %s is being removed", c.id)
	case Restarting:
		// no process is running; cancel the pending restart
		err := c.state.Transition(Restarting, Stopped)
		if err == nil {
			c.restartCount = 0
			c.saveStateLocked()
		}
		c.m.Unlock()
		return err
	case Paused:
		// a frozen task cannot act on any signal
		if err := c.cgroup.Freeze(cgroups.Thawed); err != nil {
			c.m.Unlock()
			return newSystemError(err)
		}
	}
	c.stopRequested = true
	proc := c.initProcess
	ch := c.exitCh
	c.m.Unlock()

	if proc == nil || ch == nil {
		return nil
	}
	if err := proc.signal(int(unix.SIGTERM)); err != nil && err != unix.ESRCH {
		return newSystemError(err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
	}

	c.logger.WithField("grace", grace).Warn("grace period expired, killing")
	if err := proc.signal(int(unix.SIGKILL)); err != nil && err != unix.ESRCH {
		return newSystemError(err)
	}
	confirm := time.NewTimer(killConfirmTimeout)
	defer confirm.Stop()
	select {
	case <-ch:
		return nil
	case <-confirm.C:
		return newGenericErrorf(Timeout, "container %s survived SIGKILL", c.id)
	}
}

func (c *linuxContainer) Pause() error {
	c.m.Lock()
	defer c.m.Unlock()
	if err := c.state.Transition(Running, Paused); err != nil {
		return err
	}
	if err := c.cgroup.Freeze(cgroups.Frozen); err != nil {
		_ = c.state.Transition(Paused, Running)
		return newSystemError(err)
	}
	c.saveStateLocked()
	c.rt.events.publish(EventPaused, c.id)
	return nil
}

func (c *linuxContainer) Resume() error {
	c.m.Lock()
	defer c.m.Unlock()
	if err := c.state.Transition(Paused, Running); err != nil {
		return err
	}
	if err := c.cgroup.Freeze(cgroups.Thawed); err != nil {
		_ = c.state.Transition(Running, Paused)
		return newSystemError(err)
	}
	c.saveStateLocked()
	c.rt.events.publish(EventResumed, c.id)
	return nil
}

func (c *linuxContainer) Wait() (*ExitStatus, error) {
	c.m.Lock()
	ch := c.exitCh
	exit := c.exitStatus
	c.m.Unlock()
	if ch == nil {
		if exit != nil {
			e := *exit
			return &e, nil
		}
		return nil, newGenericErrorf(Conflict, "container %s has never been started", c.id)
	}
	<-ch
	c.m.Lock()
	defer c.m.Unlock()
	if c.exitStatus == nil {
		return nil, newSystemError(fmt.Errorf("container %s exited without a recorded status", c.id))
	}
	e := *c.exitStatus
	return &e, nil
}

func (c *linuxContainer) ExitStatus() *ExitStatus {
	c.m.Lock()
	defer c.m.Unlock()
	if c.exitStatus == nil {
		return nil
	}
	e := *c.exitStatus
	return &e
}

func (c *linuxContainer) Stats() (*cgroups.Usage, error) {
	c.m.Lock()
	cg := c.cgroup
	c.m.Unlock()
	if cg == nil {
		return nil, newGenericErrorf(Conflict, "container %s is not running", c.id)
	}
	u, err := cg.GetUsage()
	if err != nil {
		return nil, newSystemError(err)
	}
	return u, nil
}

func (c *linuxContainer) Processes() ([]int, error) {
	c.m.Lock()
	cg := c.cgroup
	c.m.Unlock()
	if cg == nil {
		return nil, newGenericErrorf(Conflict, "container %s is not running", c.id)
	}
	pids, err := cg.GetPids()
	if err != nil {
		return nil, newSystemError(err)
	}
	return pids, nil
}

// ConsoleMaster returns the pty master of an interactive container, or nil
// when no tty was allocated.
func (c *linuxContainer) ConsoleMaster() *os.File {
	c.m.Lock()
	defer c.m.Unlock()
	if c.console == nil {
		return nil
	}
	return c.console.Master()
}

// claimRemoval takes the Removing transition under the lifecycle lock: a
// removal racing an in-flight start blocks until the start commits, then
// fails with Conflict on the Running state. Only a container holding no
// kernel resources can be claimed.
func (c *linuxContainer) claimRemoval() error {
	c.m.Lock()
	defer c.m.Unlock()
	st := c.state.Current()
	switch st {
	case Created, Stopped, Dead:
		return c.state.Transition(st, Removing)
	}
	return newGenericErrorf(Conflict, "container %s is %s; stop it before removing", c.id, st)
}

func (c *linuxContainer) persist() {
	c.m.Lock()
	c.saveStateLocked()
	c.m.Unlock()
}

// saveStateLocked mirrors the container into the state store. Persistence
// failures are logged, not propagated: the in-memory state machine is the
// source of truth while the daemon lives.
func (c *linuxContainer) saveStateLocked() {
	created, started, finished := c.state.timestamps()
	r := &statestore.Record{
		ID:         c.id,
		Spec:       c.spec,
		Status:     c.state.Current().String(),
		Profile:    c.spec.Profile,
		Network:    c.netState,
		CreatedAt:  created,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if c.initProcess != nil {
		r.Pid = c.initProcess.pid()
		r.InitStartTime = c.initStart
	}
	if c.cgroup != nil {
		r.CgroupPath = c.cgroup.Path()
	}
	if c.exitStatus != nil {
		r.Exited = true
		r.ExitCode = c.exitStatus.Code
		r.ExitSignal = c.exitStatus.Signal
		r.OOMKilled = c.exitStatus.OOMKilled
	}
	if err := c.rt.store.Save(r); err != nil {
		c.logger.WithError(err).Error("persist container state")
	}
}
