package validate

import (
	"testing"

	"github.com/vesselrun/vessel/configs"
)

func valid() *configs.Spec {
	return &configs.Spec{
		Args:   []string{"/bin/sh"},
		Rootfs: "/var/lib/vessel/rootfs",
	}
}

func TestValidateAccepts(t *testing.T) {
	v := New()
	spec := valid()
	spec.Env = []string{"PATH=/bin", "TERM=xterm"}
	spec.Hostname = "box"
	spec.Resources = &configs.Resources{Memory: 1 << 20, CpuShares: 512, PidsLimit: 100}
	spec.Mounts = []configs.Mount{{Source: "/data", Target: "/data", Mode: "ro"}}
	spec.Restart = configs.RestartPolicy{Policy: "on-failure", MaxRetries: 3}
	if err := v.Validate(spec); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejects(t *testing.T) {
	v := New()
	cases := []struct {
		name   string
		mutate func(*configs.Spec)
	}{
		{"nil spec", nil},
		{"no args", func(s *configs.Spec) { s.Args = nil }},
		{"no image or rootfs", func(s *configs.Spec) { s.Rootfs = "" }},
		{"relative rootfs", func(s *configs.Spec) { s.Rootfs = "rootfs" }},
		{"bad env", func(s *configs.Spec) { s.Env = []string{"NOEQUALS"} }},
		{"unknown namespace", func(s *configs.Spec) {
			s.Namespaces = []configs.NamespaceType{"cgroup"}
		}},
		{"duplicate namespace", func(s *configs.Spec) {
			s.Namespaces = []configs.NamespaceType{configs.NEWPID, configs.NEWPID}
		}},
		{"tiny memory", func(s *configs.Spec) {
			s.Resources = &configs.Resources{Memory: 1024}
		}},
		{"negative pids", func(s *configs.Spec) {
			s.Resources = &configs.Resources{PidsLimit: -1}
		}},
		{"absurd cpu quota", func(s *configs.Spec) {
			s.Resources = &configs.Resources{CpuQuota: 101 * 100000, CpuPeriod: 100000}
		}},
		{"mount without target", func(s *configs.Spec) {
			s.Mounts = []configs.Mount{{Source: "/data"}}
		}},
		{"relative mount target", func(s *configs.Spec) {
			s.Mounts = []configs.Mount{{Source: "/data", Target: "data"}}
		}},
		{"bad mount mode", func(s *configs.Spec) {
			s.Mounts = []configs.Mount{{Source: "/data", Target: "/data", Mode: "rx"}}
		}},
		{"unknown restart policy", func(s *configs.Spec) {
			s.Restart = configs.RestartPolicy{Policy: "forever"}
		}},
		{"relative workdir", func(s *configs.Spec) { s.WorkingDir = "tmp" }},
		{"hostname without uts", func(s *configs.Spec) {
			s.Hostname = "box"
			s.Namespaces = []configs.NamespaceType{configs.NEWPID}
		}},
	}
	for _, tc := range cases {
		var spec *configs.Spec
		if tc.mutate != nil {
			spec = valid()
			tc.mutate(spec)
		}
		if err := v.Validate(spec); err == nil {
			t.Errorf("%s: validation passed", tc.name)
		}
	}
}
