package main

import (
	"encoding/json"
	"os"

	"github.com/urfave/cli"
)

var inspectCommand = cli.Command{
	Name:      "inspect",
	Usage:     "print a container's state as JSON",
	ArgsUsage: "<id>",
	Action: func(context *cli.Context) {
		rt, err := loadRuntime(context)
		if err != nil {
			fatal(err)
		}
		defer rt.Close()
		id, err := getID(context)
		if err != nil {
			fatal(err)
		}
		snap, err := rt.Inspect(id)
		if err != nil {
			fatal(err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			fatal(err)
		}
	},
}

var statsCommand = cli.Command{
	Name:      "stats",
	Usage:     "print a live resource usage snapshot from the container's cgroup",
	ArgsUsage: "<id>",
	Action: func(context *cli.Context) {
		rt, err := loadRuntime(context)
		if err != nil {
			fatal(err)
		}
		defer rt.Close()
		id, err := getID(context)
		if err != nil {
			fatal(err)
		}
		usage, err := rt.Stats(id)
		if err != nil {
			fatal(err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(usage); err != nil {
			fatal(err)
		}
	},
}
