package main

import (
	"runtime"

	"github.com/urfave/cli"

	"github.com/vesselrun/vessel"
)

var initCommand = cli.Command{
	Name:   "init",
	Usage:  "internal command that sets up the container from the inside; never invoke directly",
	Hidden: true,
	Action: func(context *cli.Context) {
		runtime.GOMAXPROCS(1)
		runtime.LockOSThread()
		if err := vessel.StartInitialization(); err != nil {
			fatal(err)
		}
		panic("init returned without exec")
	},
}
