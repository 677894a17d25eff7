package seccomp

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestProgramShape(t *testing.T) {
	raw, err := program(&Config{
		DefaultAction: ActAllow,
		Rules: []Rule{
			{Syscall: "reboot", Action: ActErrno},
			{Syscall: "frobnicate", Action: ActKill}, // unknown on every arch
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// 4 header instructions, 2 per known rule, 1 default return; the
	// unknown syscall contributes nothing
	if len(raw) != 7 {
		t.Fatalf("program has %d instructions, want 7", len(raw))
	}
	// the architecture word is checked before any syscall number
	if raw[0].K != dataOffsetArch {
		t.Fatalf("first load at offset %d, want the arch field", raw[0].K)
	}
	if raw[1].K != nativeArch {
		t.Fatalf("arch guard compares against %#x, want %#x", raw[1].K, nativeArch)
	}
	if raw[2].K != retKill {
		t.Fatal("foreign-arch calls must be killed")
	}
	if last := raw[len(raw)-1]; last.K != retAllow {
		t.Fatalf("default return %#x, want allow", last.K)
	}
}

func TestProgramErrnoReturn(t *testing.T) {
	raw, err := program(&Config{
		DefaultAction: ActAllow,
		Rules:         []Rule{{Syscall: "reboot", Action: ActErrno}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := uint32(retErrno | uint32(unix.EPERM))
	found := false
	for _, in := range raw {
		if in.K == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("no instruction returns ERRNO(EPERM) %#x", want)
	}
}

func TestProgramUnknownAction(t *testing.T) {
	if _, err := program(&Config{DefaultAction: Action(99)}); err == nil {
		t.Fatal("unknown default action accepted")
	}
	_, err := program(&Config{
		DefaultAction: ActAllow,
		Rules:         []Rule{{Syscall: "reboot", Action: Action(99)}},
	})
	if err == nil {
		t.Fatal("unknown rule action accepted")
	}
}

func TestLoadNilConfig(t *testing.T) {
	if err := Load(nil); err != nil {
		t.Fatal(err)
	}
}
