package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli"

	"github.com/vesselrun/vessel/configs"
)

// specFlags are shared by create and run.
var specFlags = []cli.Flag{
	cli.StringFlag{Name: "spec", Usage: "load the container spec from a JSON file"},
	cli.StringFlag{Name: "oci", Usage: "load the container spec from an OCI runtime config.json"},
	cli.StringFlag{Name: "image", Usage: "image reference to resolve through the image store"},
	cli.StringFlag{Name: "rootfs", Usage: "pre-unpacked root filesystem path"},
	cli.StringSliceFlag{Name: "env, e", Usage: "environment variable in KEY=VALUE form"},
	cli.StringFlag{Name: "workdir, w", Usage: "working directory inside the container"},
	cli.StringFlag{Name: "hostname", Usage: "hostname inside the uts namespace"},
	cli.StringSliceFlag{Name: "ns", Usage: "namespace to create (pid, mnt, net, uts, ipc, user); repeatable"},
	cli.Int64Flag{Name: "memory, m", Usage: "memory limit in bytes"},
	cli.Int64Flag{Name: "cpu-quota", Usage: "cpu quota in microseconds per period"},
	cli.Int64Flag{Name: "cpu-period", Usage: "cpu period in microseconds"},
	cli.Int64Flag{Name: "cpu-shares", Usage: "relative cpu weight"},
	cli.Int64Flag{Name: "pids-limit", Usage: "maximum number of tasks"},
	cli.StringFlag{Name: "profile", Usage: "security profile name"},
	cli.StringSliceFlag{Name: "mount, v", Usage: "bind mount as source:target[:ro|rw]; repeatable"},
	cli.StringFlag{Name: "net", Usage: "network strategy: none, loopback or veth"},
	cli.BoolFlag{Name: "tty, t", Usage: "allocate a pty for the container"},
	cli.BoolFlag{Name: "detach, d", Usage: "run the container in the background"},
	cli.BoolFlag{Name: "rm", Usage: "remove the container when it exits"},
	cli.StringFlag{Name: "restart", Usage: "restart policy: no, always or on-failure[:max]"},
}

// loadSpec builds the container spec from a spec file, an OCI bundle
// config or the command line, in that order of precedence. Flags overlay
// whatever a file provided.
func loadSpec(context *cli.Context) (*configs.Spec, error) {
	var spec *configs.Spec
	switch {
	case context.String("spec") != "":
		data, err := os.ReadFile(context.String("spec"))
		if err != nil {
			return nil, err
		}
		spec = &configs.Spec{}
		if err := json.Unmarshal(data, spec); err != nil {
			return nil, fmt.Errorf("parse spec: %w", err)
		}
	case context.String("oci") != "":
		data, err := os.ReadFile(context.String("oci"))
		if err != nil {
			return nil, err
		}
		var oci specs.Spec
		if err := json.Unmarshal(data, &oci); err != nil {
			return nil, fmt.Errorf("parse OCI config: %w", err)
		}
		spec = configs.FromOCI(&oci)
	default:
		spec = &configs.Spec{}
	}
	if err := overlaySpec(spec, context); err != nil {
		return nil, err
	}
	return spec, nil
}

func overlaySpec(spec *configs.Spec, context *cli.Context) error {
	if args := context.Args(); len(args) > 0 {
		spec.Args = []string(args)
	}
	if v := context.String("image"); v != "" {
		spec.Image = v
	}
	if v := context.String("rootfs"); v != "" {
		spec.Rootfs = v
	}
	if v := context.StringSlice("env"); len(v) > 0 {
		spec.Env = append(spec.Env, v...)
	}
	if v := context.String("workdir"); v != "" {
		spec.WorkingDir = v
	}
	if v := context.String("hostname"); v != "" {
		spec.Hostname = v
	}
	for _, ns := range context.StringSlice("ns") {
		spec.Namespaces = append(spec.Namespaces, configs.NamespaceType(ns))
	}
	if res := resourcesFromFlags(context); res != nil {
		spec.Resources = res
	}
	if v := context.String("profile"); v != "" {
		spec.Profile = v
	}
	for _, m := range context.StringSlice("mount") {
		mount, err := parseMount(m)
		if err != nil {
			return err
		}
		spec.Mounts = append(spec.Mounts, mount)
	}
	if v := context.String("net"); v != "" {
		spec.Network = v
	}
	if context.Bool("tty") {
		spec.Tty = true
	}
	if context.Bool("detach") {
		spec.Detach = true
	}
	if context.Bool("rm") {
		spec.AutoRemove = true
	}
	if v := context.String("restart"); v != "" {
		policy, err := parseRestart(v)
		if err != nil {
			return err
		}
		spec.Restart = policy
	}
	return nil
}

func resourcesFromFlags(context *cli.Context) *configs.Resources {
	res := &configs.Resources{
		Memory:    context.Int64("memory"),
		CpuQuota:  context.Int64("cpu-quota"),
		CpuPeriod: context.Int64("cpu-period"),
		CpuShares: context.Int64("cpu-shares"),
		PidsLimit: context.Int64("pids-limit"),
	}
	if *res == (configs.Resources{}) {
		return nil
	}
	return res
}

func parseMount(s string) (configs.Mount, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		return configs.Mount{Source: parts[0], Target: parts[1]}, nil
	case 3:
		return configs.Mount{Source: parts[0], Target: parts[1], Mode: parts[2]}, nil
	}
	return configs.Mount{}, fmt.Errorf("malformed mount %q, want source:target[:mode]", s)
}

func parseRestart(s string) (configs.RestartPolicy, error) {
	name, max, found := strings.Cut(s, ":")
	policy := configs.RestartPolicy{Policy: name}
	if found {
		if name != "on-failure" {
			return policy, fmt.Errorf("restart policy %q takes no retry count", name)
		}
		n, err := strconv.Atoi(max)
		if err != nil || n < 0 {
			return policy, fmt.Errorf("malformed restart retry count %q", max)
		}
		policy.MaxRetries = n
	}
	return policy, nil
}
