package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"
	"golang.org/x/sys/unix"
)

var stopCommand = cli.Command{
	Name:      "stop",
	Usage:     "stop a running container, killing it after the grace period",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		cli.DurationFlag{Name: "time, t", Value: 10 * time.Second, Usage: "grace period before the forced kill"},
	},
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
		if err := rt.Stop(id, context.Duration("time")); err != nil {
			fatal(err)
		}
	},
}

var killCommand = cli.Command{
	Name:      "kill",
	Usage:     "send a signal to the container's init process",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "signal, s", Value: "TERM", Usage: "signal name or number to send"},
	},
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
		sig, err := parseSignal(context.String("signal"))
		if err != nil {
			fatal(err)
		}
		if err := rt.Signal(id, sig); err != nil {
			fatal(err)
		}
	},
}

var pauseCommand = cli.Command{
	Name:      "pause",
	Usage:     "freeze every process in the container",
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
		if err := rt.Pause(id); err != nil {
			fatal(err)
		}
	},
}

var unpauseCommand = cli.Command{
	Name:      "unpause",
	Usage:     "thaw a paused container",
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
		if err := rt.Resume(id); err != nil {
			fatal(err)
		}
	},
}

var removeCommand = cli.Command{
	Name:      "rm",
	Usage:     "remove a stopped container and its state",
	ArgsUsage: "<id>",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "force, f", Usage: "stop the container first if it is running"},
	},
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
		if err := rt.Remove(id, context.Bool("force")); err != nil {
			fatal(err)
		}
	},
}

var waitCommand = cli.Command{
	Name:      "wait",
	Usage:     "block until the container exits and print its exit code",
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
		status, err := rt.Wait(id)
		if err != nil {
			fatal(err)
		}
		fmt.Println(status.Code)
	},
}

var signalNames = map[string]unix.Signal{
	"HUP":  unix.SIGHUP,
	"INT":  unix.SIGINT,
	"QUIT": unix.SIGQUIT,
	"KILL": unix.SIGKILL,
	"USR1": unix.SIGUSR1,
	"USR2": unix.SIGUSR2,
	"TERM": unix.SIGTERM,
	"STOP": unix.SIGSTOP,
	"CONT": unix.SIGCONT,
}

func parseSignal(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	name := strings.TrimPrefix(strings.ToUpper(s), "SIG")
	if sig, ok := signalNames[name]; ok {
		return int(sig), nil
	}
	return 0, fmt.Errorf("unknown signal %q", s)
}
