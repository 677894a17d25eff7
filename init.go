package vessel

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/vesselrun/vessel/configs"
	"github.com/vesselrun/vessel/console"
	"github.com/vesselrun/vessel/mount"
	"github.com/vesselrun/vessel/network"
	"github.com/vesselrun/vessel/security"
	"github.com/vesselrun/vessel/syncpipe"
	"github.com/vesselrun/vessel/system"
)

// StartInitialization is the entry point of the reexeced init process,
// already inside the namespaces its clone flags established. It reads the
// setup payload from the sync pipe, prepares the container from the inside
// and execs the command; on success it never returns. Every failure is
// reported back through the pipe before the process exits.
func StartInitialization() (err error) {
	fdStr := os.Getenv(initPipeEnv)
	if fdStr == "" {
		return fmt.Errorf("%s not set; this process is not a container init", initPipeEnv)
	}
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return fmt.Errorf("malformed %s=%q", initPipeEnv, fdStr)
	}
	pipe, err := syncpipe.NewChildPipe(uintptr(fd))
	if err != nil {
		return err
	}

	var cfg initConfig
	if err := pipe.ReadFromParent(&cfg); err != nil {
		pipe.ReportError("", err)
		return err
	}
	// once everything below succeeds, exec closes the pipe and the EOF is
	// the parent's success signal
	unix.CloseOnExec(fd)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("container init panicked: %v", r)
			pipe.ReportError("", err)
		}
	}()

	if err := setupProcess(&cfg); err != nil {
		pipe.ReportError(syncpipe.KindResource, err)
		return err
	}
	if err := security.Apply(cfg.Profile); err != nil {
		pipe.ReportError(syncpipe.KindSecurity, err)
		return err
	}
	err = system.Execv(cfg.Args[0], cfg.Args, cfg.Env)
	pipe.ReportError("", err)
	return err
}

// setupProcess prepares everything that must happen between clone and the
// security clampdown: session, console, network, filesystem.
func setupProcess(cfg *initConfig) error {
	if _, err := unix.Setsid(); err != nil {
		return fmt.Errorf("setsid: %w", err)
	}
	if cfg.ConsolePath != "" {
		if err := console.OpenAndDup(cfg.ConsolePath); err != nil {
			return fmt.Errorf("open console %s: %w", cfg.ConsolePath, err)
		}
	}
	if cfg.ParentDeathSignal > 0 {
		if err := system.ParentDeathSignal(uintptr(cfg.ParentDeathSignal)); err != nil {
			return fmt.Errorf("set parent death signal: %w", err)
		}
	}
	if cfg.Hostname != "" && hasNamespace(cfg, configs.NEWUTS) {
		if err := unix.Sethostname([]byte(cfg.Hostname)); err != nil {
			return fmt.Errorf("sethostname %s: %w", cfg.Hostname, err)
		}
	}
	if cfg.Network != nil && hasNamespace(cfg, configs.NEWNET) {
		strategy, err := network.GetStrategy(cfg.Network.Strategy)
		if err != nil {
			return err
		}
		if err := strategy.Initialize(cfg.Network); err != nil {
			return fmt.Errorf("initialize network: %w", err)
		}
	}
	if hasNamespace(cfg, configs.NEWNS) {
		if err := mount.InitializeMountNamespace(cfg.Rootfs, cfg.Mounts); err != nil {
			return err
		}
	}
	if cfg.WorkingDir != "" {
		if err := os.MkdirAll(cfg.WorkingDir, 0o755); err != nil {
			return fmt.Errorf("create workdir %s: %w", cfg.WorkingDir, err)
		}
		if err := os.Chdir(cfg.WorkingDir); err != nil {
			return fmt.Errorf("chdir %s: %w", cfg.WorkingDir, err)
		}
	}
	return nil
}

func hasNamespace(cfg *initConfig, t configs.NamespaceType) bool {
	for _, ns := range cfg.Namespaces {
		if ns == t {
			return true
		}
	}
	return false
}
