package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/vesselrun/vessel"
)

// daemonConfig is the yaml shape of the runtime configuration file.
// Durations are written in time.ParseDuration form ("10s").
type daemonConfig struct {
	Root         string `yaml:"root"`
	CgroupRoot   string `yaml:"cgroup_root"`
	CgroupParent string `yaml:"cgroup_parent"`
	ImageRoot    string `yaml:"image_root"`
	StopGrace    string `yaml:"stop_grace"`
	Debug        bool   `yaml:"debug"`
	LogFile      string `yaml:"log_file"`
}

func loadDaemonConfig(context *cli.Context) (*daemonConfig, error) {
	cfg := &daemonConfig{}
	path := context.GlobalString("config")
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// loadRuntime builds the runtime from the config file overlaid with the
// global flags.
func loadRuntime(context *cli.Context) (*vessel.Runtime, error) {
	cfg, err := loadDaemonConfig(context)
	if err != nil {
		return nil, err
	}
	rc := vessel.Config{
		Root:         cfg.Root,
		CgroupRoot:   cfg.CgroupRoot,
		CgroupParent: cfg.CgroupParent,
		ImageRoot:    cfg.ImageRoot,
		Logger:       logrus.StandardLogger(),
	}
	if cfg.StopGrace != "" {
		d, err := time.ParseDuration(cfg.StopGrace)
		if err != nil {
			return nil, fmt.Errorf("stop_grace: %w", err)
		}
		rc.StopGrace = d
	}
	if root := context.GlobalString("root"); root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		rc.Root = abs
	}
	return vessel.New(rc)
}

func getID(context *cli.Context) (string, error) {
	id := context.Args().First()
	if id == "" {
		return "", fmt.Errorf("container id required")
	}
	return id, nil
}

// fatal prints the error and exits with status 1.
func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
