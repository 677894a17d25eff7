package vessel

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vesselrun/vessel/configs"
	"github.com/vesselrun/vessel/network"
	"github.com/vesselrun/vessel/security"
	"github.com/vesselrun/vessel/syncpipe"
	"github.com/vesselrun/vessel/system"
)

// initPipeEnv names the environment variable carrying the sync pipe fd
// into the reexeced init process.
const initPipeEnv = "_VESSEL_INITPIPE"

// initConfig is the setup payload the supervisor sends over the sync pipe.
// The child trusts it completely; everything here was validated before the
// fork.
type initConfig struct {
	ID                string                  `json:"id"`
	Args              []string                `json:"args"`
	Env               []string                `json:"env"`
	WorkingDir        string                  `json:"working_dir,omitempty"`
	Hostname          string                  `json:"hostname,omitempty"`
	Rootfs            string                  `json:"rootfs"`
	Mounts            []configs.Mount         `json:"mounts,omitempty"`
	Namespaces        []configs.NamespaceType `json:"namespaces"`
	Profile           *security.Profile       `json:"profile"`
	Network           *network.State          `json:"network,omitempty"`
	ConsolePath       string                  `json:"console_path,omitempty"`
	ParentDeathSignal int                     `json:"parent_death_signal,omitempty"`
}

// parentProcess is the supervisor's handle on a container's init process.
// Two implementations exist: initProcess for a child we forked ourselves,
// and restoredProcess for an init inherited from a previous daemon, which
// can only be observed from the outside.
type parentProcess interface {
	pid() int

	// startTime returns the kernel start-time tick identifying this
	// process instance.
	startTime() (string, error)

	signal(sig int) error

	// wait blocks until the process is gone and returns its translated
	// exit status. It must be called exactly once.
	wait() (*ExitStatus, error)

	// terminate force-kills the process. The exit still arrives through
	// wait.
	terminate() error
}

// initProcess wraps a child this daemon forked. The exec.Cmd owns the
// wait(2) on it.
type initProcess struct {
	cmd  *exec.Cmd
	pipe *syncpipe.Pipe
}

func (p *initProcess) pid() int {
	return p.cmd.Process.Pid
}

func (p *initProcess) startTime() (string, error) {
	return system.GetProcessStartTime(p.pid())
}

func (p *initProcess) signal(sig int) error {
	return unix.Kill(p.pid(), unix.Signal(sig))
}

func (p *initProcess) wait() (*ExitStatus, error) {
	err := p.cmd.Wait()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, err
		}
	}
	ws, ok := p.cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return &ExitStatus{Code: p.cmd.ProcessState.ExitCode()}, nil
	}
	return translateWaitStatus(ws), nil
}

func (p *initProcess) terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if err == unix.ESRCH {
		err = nil
	}
	return err
}

func translateWaitStatus(ws syscall.WaitStatus) *ExitStatus {
	if ws.Signaled() {
		return &ExitStatus{Code: -1, Signal: int(ws.Signal())}
	}
	return &ExitStatus{Code: ws.ExitStatus()}
}

// restoredProcess is the handle on an init process that survived a daemon
// restart. It is not our child, so exit can only be observed by polling
// and the real wait status is lost to the kernel's reaper.
type restoredProcess struct {
	processPid int
	started    string
}

const restoredPollInterval = 100 * time.Millisecond

func (p *restoredProcess) pid() int {
	return p.processPid
}

func (p *restoredProcess) startTime() (string, error) {
	return p.started, nil
}

func (p *restoredProcess) signal(sig int) error {
	return unix.Kill(p.processPid, unix.Signal(sig))
}

// alive reports whether the original process instance still exists. A
// recycled pid fails the start-time comparison.
func (p *restoredProcess) alive() bool {
	if !system.PidAlive(p.processPid) {
		return false
	}
	st, err := system.GetProcessStartTime(p.processPid)
	return err == nil && st == p.started
}

func (p *restoredProcess) wait() (*ExitStatus, error) {
	for p.alive() {
		time.Sleep(restoredPollInterval)
	}
	// the wait status went to whoever reaped it
	return &ExitStatus{Code: -1}, nil
}

func (p *restoredProcess) terminate() error {
	err := unix.Kill(p.processPid, unix.SIGKILL)
	if err == unix.ESRCH {
		return nil
	}
	return err
}
