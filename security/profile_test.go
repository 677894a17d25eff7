package security

import (
	"testing"

	"github.com/vesselrun/vessel/security/seccomp"
)

func TestLookupDefault(t *testing.T) {
	p, err := Lookup("")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "default" {
		t.Fatalf("empty name resolved to %q", p.Name)
	}
	if !p.NoNewPrivileges {
		t.Fatal("default profile without no_new_privs")
	}
	if p.Seccomp == nil || p.Seccomp.DefaultAction != seccomp.ActAllow {
		t.Fatal("default profile seccomp config missing or wrong default action")
	}
	denied := map[string]bool{}
	for _, r := range p.Seccomp.Rules {
		denied[r.Syscall] = r.Action == seccomp.ActErrno
	}
	for _, sc := range []string{"reboot", "init_module", "kexec_load", "open_by_handle_at"} {
		if !denied[sc] {
			t.Errorf("default profile does not deny %s", sc)
		}
	}
	// the path restrictions run after the capability drop and use
	// mount(2), so the drop must retain CAP_SYS_ADMIN
	hasAdmin := false
	for _, c := range p.Capabilities {
		if c == "CAP_SYS_ADMIN" {
			hasAdmin = true
		}
	}
	if !hasAdmin {
		t.Fatal("default profile cannot mask paths without CAP_SYS_ADMIN")
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("no-such-profile"); err == nil {
		t.Fatal("unknown profile resolved")
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	a, err := Lookup("default")
	if err != nil {
		t.Fatal(err)
	}
	a.Capabilities[0] = "CAP_SYS_MODULE"
	a.Seccomp.Rules[0].Syscall = "read"

	b, err := Lookup("default")
	if err != nil {
		t.Fatal(err)
	}
	if b.Capabilities[0] == "CAP_SYS_MODULE" {
		t.Fatal("lookup leaks the registered capability slice")
	}
	if b.Seccomp.Rules[0].Syscall == "read" {
		t.Fatal("lookup leaks the registered seccomp rules")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	if err := Register(&Profile{Name: "default"}); err == nil {
		t.Fatal("duplicate registration accepted")
	}
	if err := Register(&Profile{}); err == nil {
		t.Fatal("unnamed profile accepted")
	}
}

func TestPrivilegedProfile(t *testing.T) {
	p, err := Lookup("privileged")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Privileged {
		t.Fatal("privileged profile not marked privileged")
	}
	// applying it is a no-op and must not fail even without privileges
	if err := Apply(p); err != nil {
		t.Fatal(err)
	}
}
