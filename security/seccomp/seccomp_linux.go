package seccomp

import (
	"fmt"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// seccomp_data field offsets
const (
	dataOffsetNr   = 0
	dataOffsetArch = 4
)

// filter return values, from linux/seccomp.h
const (
	retKill  = 0x00000000
	retTrap  = 0x00030000
	retErrno = 0x00050000
	retAllow = 0x7fff0000
)

func retValue(a Action) (uint32, error) {
	switch a {
	case ActAllow:
		return retAllow, nil
	case ActErrno:
		return retErrno | uint32(unix.EPERM), nil
	case ActKill:
		return retKill, nil
	case ActTrap:
		return retTrap, nil
	}
	return 0, fmt.Errorf("unknown seccomp action %d", a)
}

// program assembles the BPF filter for the config. The program checks the
// architecture first and kills on mismatch so that a syscall number from a
// foreign ABI can never slip past a rule written for the native one.
func program(c *Config) ([]bpf.RawInstruction, error) {
	def, err := retValue(c.DefaultAction)
	if err != nil {
		return nil, err
	}
	insns := []bpf.Instruction{
		bpf.LoadAbsolute{Off: dataOffsetArch, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: nativeArch, SkipTrue: 1},
		bpf.RetConstant{Val: retKill},
		bpf.LoadAbsolute{Off: dataOffsetNr, Size: 4},
	}
	for _, rule := range c.Rules {
		nr, ok := syscalls[rule.Syscall]
		if !ok {
			continue
		}
		act, err := retValue(rule.Action)
		if err != nil {
			return nil, err
		}
		insns = append(insns,
			bpf.JumpIf{Cond: bpf.JumpEqual, Val: nr, SkipFalse: 1},
			bpf.RetConstant{Val: act},
		)
	}
	insns = append(insns, bpf.RetConstant{Val: def})
	return bpf.Assemble(insns)
}

// Load installs the filter into the kernel for the current thread and its
// future children. Requires either CAP_SYS_ADMIN or the no-new-privileges
// bit, which the enforcer sets before calling this.
func Load(c *Config) error {
	if c == nil {
		return nil
	}
	raw, err := program(c)
	if err != nil {
		return err
	}
	sockFilter := make([]unix.SockFilter, len(raw))
	for i, in := range raw {
		sockFilter[i] = unix.SockFilter{
			Code: in.Op,
			Jt:   in.Jt,
			Jf:   in.Jf,
			K:    in.K,
		}
	}
	prog := unix.SockFprog{
		Len:    uint16(len(sockFilter)),
		Filter: &sockFilter[0],
	}
	if err := unix.Prctl(unix.PR_SET_SECCOMP, unix.SECCOMP_MODE_FILTER,
		uintptr(unsafe.Pointer(&prog)), 0, 0); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}
