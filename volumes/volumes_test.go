package volumes

import (
	"testing"

	"github.com/vesselrun/vessel/configs"
)

func TestResolveMountsDefaultsMode(t *testing.T) {
	src := t.TempDir()
	spec := &configs.Spec{
		Mounts: []configs.Mount{{Source: src, Target: "/data"}},
	}
	mounts, err := NewHostResolver().ResolveMounts(spec)
	if err != nil {
		t.Fatal(err)
	}
	if len(mounts) != 1 {
		t.Fatalf("resolved %d mounts", len(mounts))
	}
	if mounts[0].Mode != "rw" {
		t.Fatalf("default mode %q, want rw", mounts[0].Mode)
	}
	if mounts[0].Source != src || mounts[0].Target != "/data" {
		t.Fatalf("mount %+v", mounts[0])
	}
}

func TestResolveMountsMissingSource(t *testing.T) {
	spec := &configs.Spec{
		Mounts: []configs.Mount{{Source: "/no/such/path/anywhere", Target: "/data"}},
	}
	if _, err := NewHostResolver().ResolveMounts(spec); err == nil {
		t.Fatal("missing source accepted")
	}
}

func TestResolveMountsEmpty(t *testing.T) {
	mounts, err := NewHostResolver().ResolveMounts(&configs.Spec{})
	if err != nil {
		t.Fatal(err)
	}
	if len(mounts) != 0 {
		t.Fatalf("resolved %v from an empty spec", mounts)
	}
}
