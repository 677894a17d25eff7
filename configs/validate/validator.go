package validate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vesselrun/vessel/configs"
)

// Validator checks a spec for internal consistency before a container
// record is created from it. It does not touch the host: existence of
// mount sources and the rootfs is checked at start time.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(spec *configs.Spec) error {
	if spec == nil {
		return fmt.Errorf("spec is nil")
	}
	if len(spec.Args) == 0 {
		return fmt.Errorf("args must name a command to run")
	}
	if spec.Image == "" && spec.Rootfs == "" {
		return fmt.Errorf("either an image reference or a rootfs path is required")
	}
	if spec.Rootfs != "" && !filepath.IsAbs(spec.Rootfs) {
		return fmt.Errorf("rootfs %q is not an absolute path", spec.Rootfs)
	}
	if err := v.env(spec.Env); err != nil {
		return err
	}
	if err := v.namespaces(spec.Namespaces); err != nil {
		return err
	}
	if err := v.resources(spec.Resources); err != nil {
		return err
	}
	if err := v.mounts(spec.Mounts); err != nil {
		return err
	}
	if err := v.restart(spec.Restart); err != nil {
		return err
	}
	if spec.WorkingDir != "" && !filepath.IsAbs(spec.WorkingDir) {
		return fmt.Errorf("working dir %q is not an absolute path", spec.WorkingDir)
	}
	if spec.Hostname != "" && !spec.HasNamespace(configs.NEWUTS) {
		return fmt.Errorf("hostname requires a uts namespace")
	}
	return nil
}

func (v *Validator) env(env []string) error {
	for _, pair := range env {
		if !strings.Contains(pair, "=") {
			return fmt.Errorf("invalid environment entry %q", pair)
		}
	}
	return nil
}

func (v *Validator) namespaces(nss []configs.NamespaceType) error {
	seen := make(map[configs.NamespaceType]bool)
	for _, ns := range nss {
		if !knownNamespace(ns) {
			return fmt.Errorf("unknown namespace type %q", ns)
		}
		if seen[ns] {
			return fmt.Errorf("duplicate namespace type %q", ns)
		}
		seen[ns] = true
	}
	return nil
}

func knownNamespace(t configs.NamespaceType) bool {
	for _, k := range configs.NamespaceTypes() {
		if t == k {
			return true
		}
	}
	return false
}

func (v *Validator) resources(r *configs.Resources) error {
	if r == nil {
		return nil
	}
	if r.Memory < 0 {
		return fmt.Errorf("memory limit must not be negative")
	}
	if r.Memory > 0 && r.Memory < 4096 {
		return fmt.Errorf("memory limit %d is below the kernel minimum", r.Memory)
	}
	if r.CpuQuota < 0 || r.CpuPeriod < 0 || r.CpuShares < 0 {
		return fmt.Errorf("cpu limits must not be negative")
	}
	if r.CpuQuota > 0 && r.CpuPeriod > 0 && r.CpuQuota > 100*r.CpuPeriod {
		return fmt.Errorf("cpu quota %d exceeds 100 cpus worth of period %d", r.CpuQuota, r.CpuPeriod)
	}
	if r.PidsLimit < 0 {
		return fmt.Errorf("pids limit must not be negative")
	}
	return nil
}

func (v *Validator) mounts(mounts []configs.Mount) error {
	for _, m := range mounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("mount requires both source and target")
		}
		if !filepath.IsAbs(m.Target) {
			return fmt.Errorf("mount target %q is not an absolute path", m.Target)
		}
		switch m.Mode {
		case "", "ro", "rw":
		default:
			return fmt.Errorf("invalid mount mode %q", m.Mode)
		}
	}
	return nil
}

func (v *Validator) restart(r configs.RestartPolicy) error {
	switch r.Policy {
	case "", "no", "on-failure", "always":
	default:
		return fmt.Errorf("unknown restart policy %q", r.Policy)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("restart max retries must not be negative")
	}
	return nil
}
