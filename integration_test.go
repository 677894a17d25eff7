package vessel

import (
	"fmt"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/vesselrun/vessel/configs"
	"github.com/vesselrun/vessel/security"
	"github.com/vesselrun/vessel/security/seccomp"
)

// TestMain doubles as the container init entry point: when the test
// binary is reexeced with the sync pipe fd in the environment it must set
// the container up instead of running tests.
func TestMain(m *testing.M) {
	if os.Getenv(initPipeEnv) != "" {
		runtime.GOMAXPROCS(1)
		runtime.LockOSThread()
		if err := StartInitialization(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	os.Exit(m.Run())
}

// integrationRootfs returns the rootfs to run real containers against, or
// skips: full lifecycle tests need root and a prepared root filesystem
// with a shell in it.
func integrationRootfs(t *testing.T) string {
	t.Helper()
	rootfs := os.Getenv("VESSEL_TEST_ROOTFS")
	if rootfs == "" {
		t.Skip("set VESSEL_TEST_ROOTFS to a prepared rootfs to run lifecycle integration tests")
	}
	if os.Geteuid() != 0 {
		t.Skip("lifecycle integration tests need root")
	}
	return rootfs
}

func TestContainerLifecycleIntegration(t *testing.T) {
	rootfs := integrationRootfs(t)
	rt := testRuntime(t, t.TempDir())
	defer rt.Shutdown()

	id, err := rt.Create(&configs.Spec{
		Args:   []string{"/bin/sleep", "60"},
		Env:    []string{"PATH=/usr/bin:/bin"},
		Rootfs: rootfs,
		Detach: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(id); err != nil {
		t.Fatal(err)
	}
	snap, err := rt.Inspect(id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != "running" || snap.Pid == 0 {
		t.Fatalf("after start: %+v", snap)
	}

	if _, err := rt.Stats(id); err != nil {
		t.Fatalf("stats on running container: %v", err)
	}
	if err := rt.Pause(id); err != nil {
		t.Fatal(err)
	}
	if c, _ := rt.Get(id); c.Status() != Paused {
		t.Fatalf("after pause: %s", c.Status())
	}
	if err := rt.Resume(id); err != nil {
		t.Fatal(err)
	}

	if err := rt.Stop(id, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	c, err := rt.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status() != Stopped {
		t.Fatalf("after stop: %s", c.Status())
	}
	exit := c.ExitStatus()
	if exit == nil {
		t.Fatal("no exit status recorded")
	}

	// a stopped container restarts from its spec
	if err := rt.Start(id); err != nil {
		t.Fatal(err)
	}
	if err := rt.Stop(id, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := rt.Remove(id, false); err != nil {
		t.Fatal(err)
	}
}

func TestContainerFastExitIntegration(t *testing.T) {
	rootfs := integrationRootfs(t)
	rt := testRuntime(t, t.TempDir())
	defer rt.Shutdown()

	// a command that exits the instant it execs must still start cleanly
	id, err := rt.Create(&configs.Spec{
		Args:   []string{"/bin/true"},
		Env:    []string{"PATH=/usr/bin:/bin"},
		Rootfs: rootfs,
		Detach: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(id); err != nil {
		t.Fatalf("starting a fast-exiting command: %v", err)
	}
	status, err := rt.Wait(id)
	if err != nil {
		t.Fatal(err)
	}
	if status.Code != 0 || status.Signal != 0 {
		t.Fatalf("exit %+v, want a clean zero exit", status)
	}
	c, err := rt.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status() != Stopped {
		t.Fatalf("after fast exit: %s", c.Status())
	}
}

func TestContainerMemoryLimitIntegration(t *testing.T) {
	rootfs := integrationRootfs(t)
	rt := testRuntime(t, t.TempDir())
	defer rt.Shutdown()

	// dd allocates its block buffer up front, well past the ceiling
	id, err := rt.Create(&configs.Spec{
		Args:      []string{"/bin/dd", "if=/dev/zero", "of=/dev/null", "bs=67108864", "count=1"},
		Env:       []string{"PATH=/usr/bin:/bin"},
		Rootfs:    rootfs,
		Detach:    true,
		Resources: &configs.Resources{Memory: 16 * 1024 * 1024},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(id); err != nil {
		t.Fatal(err)
	}
	status, err := rt.Wait(id)
	if err != nil {
		t.Fatal(err)
	}
	if !status.OOMKilled {
		t.Fatalf("exit %+v, want an OOM kill", status)
	}
	if status.Signal == 0 {
		t.Fatalf("exit %+v, want a kill signal", status)
	}
}

func TestContainerSeccompDenyIntegration(t *testing.T) {
	rootfs := integrationRootfs(t)
	rt := testRuntime(t, t.TempDir())
	defer rt.Shutdown()

	profile := security.DefaultProfile()
	profile.Name = "deny-chroot"
	profile.Seccomp.Rules = append(profile.Seccomp.Rules,
		seccomp.Rule{Syscall: "chroot", Action: seccomp.ActErrno})
	if err := security.Register(profile); err != nil {
		t.Fatal(err)
	}

	id, err := rt.Create(&configs.Spec{
		Args:    []string{"/bin/sh", "-c", "chroot / /bin/true"},
		Env:     []string{"PATH=/usr/bin:/bin:/usr/sbin:/sbin"},
		Rootfs:  rootfs,
		Detach:  true,
		Profile: "deny-chroot",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(id); err != nil {
		t.Fatal(err)
	}
	status, err := rt.Wait(id)
	if err != nil {
		t.Fatal(err)
	}
	if status.Code == 0 {
		t.Fatal("denied syscall produced a clean exit")
	}
}

func TestContainerExitIntegration(t *testing.T) {
	rootfs := integrationRootfs(t)
	rt := testRuntime(t, t.TempDir())
	defer rt.Shutdown()

	id, err := rt.Create(&configs.Spec{
		Args:   []string{"/bin/sh", "-c", "exit 3"},
		Env:    []string{"PATH=/usr/bin:/bin"},
		Rootfs: rootfs,
		Detach: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(id); err != nil {
		t.Fatal(err)
	}
	status, err := rt.Wait(id)
	if err != nil {
		t.Fatal(err)
	}
	if status.Code != 3 {
		t.Fatalf("exit code %d, want 3", status.Code)
	}
	c, err := rt.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status() != Stopped {
		t.Fatalf("after exit: %s", c.Status())
	}
}
