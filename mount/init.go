// Package mount assembles a container's filesystem tree inside a fresh
// mount namespace: it makes the rootfs the apparent root, wires the
// standard kernel filesystems, applies the spec's bind mounts and switches
// root. After InitializeMountNamespace returns, no host mount point is
// reachable from inside the container.
package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/vesselrun/vessel/configs"
)

var defaultMountFlags = uintptr(unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)

// deviceNodes are bound from the host into /dev; binding instead of mknod
// keeps this working without CAP_MKNOD in user namespaces.
var deviceNodes = []string{"null", "zero", "full", "random", "urandom", "tty"}

// InitializeMountNamespace prepares rootfs and pivots into it. Must run in
// the container's own mount namespace, before the security profile is
// applied and before exec.
func InitializeMountNamespace(rootfs string, mounts []configs.Mount) error {
	// keep our mount events out of the host's namespace
	if err := unix.Mount("", "/", "", unix.MS_SLAVE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("make / rslave: %w", err)
	}
	// the new root must be a mount point for pivot_root
	if err := unix.Mount(rootfs, rootfs, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind rootfs %s: %w", rootfs, err)
	}
	if err := mountKernelFilesystems(rootfs); err != nil {
		return err
	}
	if err := setupDev(rootfs); err != nil {
		return err
	}
	for _, m := range mounts {
		if err := bindMount(rootfs, m); err != nil {
			return err
		}
	}
	if err := pivotRoot(rootfs); err != nil {
		return err
	}
	return nil
}

func mountKernelFilesystems(rootfs string) error {
	for _, m := range []struct {
		source, target, fstype string
		flags                  uintptr
		data                   string
	}{
		{"proc", "proc", "proc", defaultMountFlags, ""},
		{"sysfs", "sys", "sysfs", defaultMountFlags | unix.MS_RDONLY, ""},
		{"tmpfs", "dev", "tmpfs", unix.MS_NOSUID, "mode=755,size=65536k"},
	} {
		target := filepath.Join(rootfs, m.target)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
		if err := unix.Mount(m.source, target, m.fstype, m.flags, m.data); err != nil {
			// sysfs mounts fail in user namespaces without a net ns
			// of our own; a bind of the host's view still works
			if err == unix.EPERM && m.fstype == "sysfs" {
				if berr := unix.Mount("/sys", target, "", unix.MS_BIND|unix.MS_REC, ""); berr == nil {
					continue
				}
			}
			return fmt.Errorf("mount %s on %s: %w", m.fstype, target, err)
		}
	}
	return nil
}

func setupDev(rootfs string) error {
	dev := filepath.Join(rootfs, "dev")
	for _, node := range deviceNodes {
		host := "/dev/" + node
		if _, err := os.Stat(host); err != nil {
			continue
		}
		target := filepath.Join(dev, node)
		f, err := os.OpenFile(target, os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		f.Close()
		if err := unix.Mount(host, target, "", unix.MS_BIND, ""); err != nil {
			return fmt.Errorf("bind %s: %w", host, err)
		}
	}
	for _, dir := range []string{"pts", "shm"} {
		if err := os.MkdirAll(filepath.Join(dev, dir), 0o755); err != nil {
			return err
		}
	}
	if err := unix.Mount("devpts", filepath.Join(dev, "pts"), "devpts",
		unix.MS_NOSUID|unix.MS_NOEXEC, "newinstance,ptmxmode=0666,mode=0620"); err != nil && err != unix.EPERM {
		return fmt.Errorf("mount devpts: %w", err)
	}
	if err := unix.Mount("shm", filepath.Join(dev, "shm"), "tmpfs",
		defaultMountFlags, "mode=1777,size=65536k"); err != nil {
		return fmt.Errorf("mount shm: %w", err)
	}
	return nil
}

func bindMount(rootfs string, m configs.Mount) error {
	source, err := filepath.Abs(m.Source)
	if err != nil {
		return err
	}
	fi, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("mount source %s: %w", source, err)
	}
	target := filepath.Join(rootfs, m.Target)
	if fi.IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		f.Close()
	}
	if err := unix.Mount(source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s on %s: %w", source, target, err)
	}
	if m.Mode == "ro" {
		if err := unix.Mount(source, target, "",
			unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("remount %s read-only: %w", target, err)
		}
	}
	return nil
}

// pivotRoot swaps the apparent root for rootfs and detaches the old root,
// leaving every host mount unreachable. This happens strictly before exec.
func pivotRoot(rootfs string) error {
	if err := unix.Chdir(rootfs); err != nil {
		return err
	}
	// new root and put-old may be the same directory; the old root ends
	// up stacked underneath and is dropped with a lazy unmount
	if err := unix.PivotRoot(".", "."); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmount old root: %w", err)
	}
	return unix.Chdir("/")
}
