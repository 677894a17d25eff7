// Package system is a thin veneer over the handful of raw syscalls the
// runtime needs outside what os and os/exec provide.
package system

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Execv replaces the current process image. It does not return on success.
func Execv(cmd string, args []string, env []string) error {
	name, err := lookPath(cmd, env)
	if err != nil {
		return err
	}
	return unix.Exec(name, args, env)
}

// lookPath resolves cmd against the PATH carried in env, since the
// process's own environment has already been replaced by the container's.
func lookPath(cmd string, env []string) (string, error) {
	if strings.Contains(cmd, "/") {
		return cmd, nil
	}
	for _, pair := range env {
		if !strings.HasPrefix(pair, "PATH=") {
			continue
		}
		for _, dir := range strings.Split(strings.TrimPrefix(pair, "PATH="), ":") {
			if dir == "" {
				continue
			}
			path := dir + "/" + cmd
			if fi, err := os.Stat(path); err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0 {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("%s: executable not found in container PATH", cmd)
}

// GetProcessStartTime reads the kernel's start-time tick for pid. Together
// with the pid it identifies a process instance: a recycled pid gets a
// different start time.
func GetProcessStartTime(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", err
	}
	// comm may contain spaces; fields are positional after its ')'
	i := strings.LastIndexByte(string(data), ')')
	if i < 0 {
		return "", fmt.Errorf("malformed stat for pid %d", pid)
	}
	parts := strings.Fields(string(data[i+1:]))
	// starttime is field 22 overall, 20th after comm and state
	if len(parts) < 20 {
		return "", fmt.Errorf("malformed stat for pid %d", pid)
	}
	return parts[19], nil
}

// SetNoNewPrivs flips the one-way no-new-privileges bit for this process.
func SetNoNewPrivs() error {
	return unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0)
}

// ParentDeathSignal arranges for sig to be delivered when the parent dies.
func ParentDeathSignal(sig uintptr) error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, sig, 0, 0, 0)
}

func GetParentDeathSignal() (int, error) {
	var sig int
	if err := unix.Prctl(unix.PR_GET_PDEATHSIG, uintptr(unsafe.Pointer(&sig)), 0, 0, 0); err != nil {
		return 0, err
	}
	return sig, nil
}

// Setctty makes the fd the controlling terminal of the current session.
func Setctty(fd uintptr) error {
	return unix.IoctlSetInt(int(fd), unix.TIOCSCTTY, 0)
}

// PidAlive reports whether a process with the given pid currently exists.
func PidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
