package security

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/vesselrun/vessel/security/capabilities"
	"github.com/vesselrun/vessel/security/seccomp"
)

// Apply enforces the profile on the current process. It must run in the
// container's init, after namespace and root setup and before exec, and in
// this exact order:
//
//  1. drop to the allow-listed capability set (irreversible)
//  2. set the no-new-privileges flag
//  3. install the syscall filter (cannot be loosened afterwards)
//  4. mask and remount the restricted filesystem paths
//
// Capabilities go first because installing the filter must not leave the
// filter-installation privilege alive in the target program; the path
// restrictions come last because they use mount(2), which the allow-list
// has to retain for this step. Any failure after step 1 is fatal to the
// start attempt: the process must never reach exec with a posture broader
// than specified.
func Apply(p *Profile) error {
	if p == nil {
		return fmt.Errorf("no security profile computed")
	}
	if p.Privileged {
		return nil
	}
	if err := capabilities.Drop(p.Capabilities); err != nil {
		return fmt.Errorf("drop capabilities: %w", err)
	}
	if p.NoNewPrivileges {
		if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
			return fmt.Errorf("set no_new_privs: %w", err)
		}
	}
	if p.Seccomp != nil {
		if err := seccomp.Load(p.Seccomp); err != nil {
			return err
		}
	}
	for _, path := range p.MaskedPaths {
		if err := maskPath(path); err != nil {
			return fmt.Errorf("mask %s: %w", path, err)
		}
	}
	for _, path := range p.ReadonlyPaths {
		if err := readonlyPath(path); err != nil {
			return fmt.Errorf("remount %s read-only: %w", path, err)
		}
	}
	return nil
}

// maskPath hides a path: files are covered with /dev/null, directories
// with an empty read-only tmpfs. Paths absent from this rootfs are
// ignored.
func maskPath(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.IsDir() {
		return unix.Mount("tmpfs", path, "tmpfs", unix.MS_RDONLY, "")
	}
	return unix.Mount("/dev/null", path, "", unix.MS_BIND, "")
}

// readonlyPath bind-mounts a path over itself and remounts it read-only.
func readonlyPath(path string) error {
	if err := unix.Mount(path, path, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return unix.Mount(path, path, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, "")
}
