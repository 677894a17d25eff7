package configs

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

var ociNamespaces = map[specs.LinuxNamespaceType]NamespaceType{
	specs.PIDNamespace:     NEWPID,
	specs.MountNamespace:   NEWNS,
	specs.NetworkNamespace: NEWNET,
	specs.UTSNamespace:     NEWUTS,
	specs.IPCNamespace:     NEWIPC,
	specs.UserNamespace:    NEWUSER,
}

// FromOCI converts an OCI runtime spec into a vessel Spec. Only the
// portions the lifecycle engine owns are mapped: process, root, hostname,
// namespaces, resource limits and bind mounts. The security posture of a
// vessel container comes from its named profile, not from the OCI document.
func FromOCI(o *specs.Spec) *Spec {
	spec := &Spec{}
	if o.Process != nil {
		spec.Args = append([]string(nil), o.Process.Args...)
		spec.Env = append([]string(nil), o.Process.Env...)
		spec.WorkingDir = o.Process.Cwd
	}
	if o.Root != nil {
		spec.Rootfs = o.Root.Path
	}
	spec.Hostname = o.Hostname
	for _, m := range o.Mounts {
		if m.Type != "bind" && !hasOption(m.Options, "bind") && !hasOption(m.Options, "rbind") {
			continue
		}
		mode := "rw"
		if hasOption(m.Options, "ro") {
			mode = "ro"
		}
		spec.Mounts = append(spec.Mounts, Mount{
			Source: m.Source,
			Target: m.Destination,
			Mode:   mode,
		})
	}
	if o.Linux == nil {
		return spec
	}
	for _, ns := range o.Linux.Namespaces {
		if t, ok := ociNamespaces[ns.Type]; ok {
			spec.Namespaces = append(spec.Namespaces, t)
		}
	}
	if r := o.Linux.Resources; r != nil {
		res := &Resources{}
		if r.Memory != nil && r.Memory.Limit != nil {
			res.Memory = *r.Memory.Limit
		}
		if r.CPU != nil {
			if r.CPU.Quota != nil {
				res.CpuQuota = *r.CPU.Quota
			}
			if r.CPU.Period != nil {
				res.CpuPeriod = int64(*r.CPU.Period)
			}
			if r.CPU.Shares != nil {
				res.CpuShares = int64(*r.CPU.Shares)
			}
		}
		if r.Pids != nil {
			res.PidsLimit = r.Pids.Limit
		}
		if *res != (Resources{}) {
			spec.Resources = res
		}
	}
	return spec
}

func hasOption(opts []string, want string) bool {
	for _, o := range opts {
		if o == want {
			return true
		}
	}
	return false
}
