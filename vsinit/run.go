package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli"
	"golang.org/x/sys/unix"

	"github.com/vesselrun/vessel"
)

var createCommand = cli.Command{
	Name:      "create",
	Usage:     "create a container without starting it",
	ArgsUsage: "command [args...]",
	Flags:     specFlags,
	Action: func(context *cli.Context) {
		rt, err := loadRuntime(context)
		if err != nil {
			fatal(err)
		}
		defer rt.Close()
		spec, err := loadSpec(context)
		if err != nil {
			fatal(err)
		}
		id, err := rt.Create(spec)
		if err != nil {
			fatal(err)
		}
		fmt.Println(id)
	},
}

var startCommand = cli.Command{
	Name:      "start",
	Usage:     "start a created container",
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
		if err := rt.Start(id); err != nil {
			fatal(err)
		}
		snap, err := rt.Inspect(id)
		if err != nil {
			fatal(err)
		}
		if snap.Spec.Detach {
			fmt.Println(snap.ID)
			return
		}
		os.Exit(foreground(rt, snap.ID))
	},
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "create and start a container in one step",
	ArgsUsage: "command [args...]",
	Flags:     specFlags,
	Action: func(context *cli.Context) {
		rt, err := loadRuntime(context)
		if err != nil {
			fatal(err)
		}
		defer rt.Close()
		spec, err := loadSpec(context)
		if err != nil {
			fatal(err)
		}
		id, err := rt.Create(spec)
		if err != nil {
			fatal(err)
		}
		if err := rt.Start(id); err != nil {
			fatal(err)
		}
		if spec.Detach {
			fmt.Println(id)
			return
		}
		os.Exit(foreground(rt, id))
	},
}

// foreground attaches to a started container, forwards termination
// signals to it and blocks until it exits. The return value follows the
// shell convention: the container's own exit code, or 128 plus the signal
// number for a signalled exit.
func foreground(rt *vessel.Runtime, id string) int {
	c, err := rt.Get(id)
	if err != nil {
		fatal(err)
	}
	attachConsole(c)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
	go func() {
		for sig := range sigCh {
			s, ok := sig.(unix.Signal)
			if !ok {
				continue
			}
			_ = c.Signal(int(s))
		}
	}()
	defer signal.Stop(sigCh)

	status, err := c.Wait()
	if err != nil {
		fatal(err)
	}
	if status.Signal != 0 {
		return 128 + status.Signal
	}
	return status.Code
}

// attachConsole wires the caller's stdio to the container's pty master,
// when one exists.
func attachConsole(c vessel.Container) {
	type consoler interface {
		ConsoleMaster() *os.File
	}
	lc, ok := c.(consoler)
	if !ok {
		return
	}
	master := lc.ConsoleMaster()
	if master == nil {
		return
	}
	go func() { _, _ = io.Copy(master, os.Stdin) }()
	go func() { _, _ = io.Copy(os.Stdout, master) }()
}
