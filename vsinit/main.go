package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "vsinit"
	app.Usage = "standalone container runtime"
	app.Version = "1"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "path to the runtime configuration file"},
		cli.StringFlag{Name: "root", Usage: "root directory for runtime state"},
		cli.BoolFlag{Name: "debug", Usage: "enable debug output in the logs"},
		cli.StringFlag{Name: "log-file", Usage: "write logs to this file instead of stderr"},
	}
	app.Commands = []cli.Command{
		createCommand,
		startCommand,
		runCommand,
		stopCommand,
		killCommand,
		pauseCommand,
		unpauseCommand,
		removeCommand,
		waitCommand,
		listCommand,
		inspectCommand,
		statsCommand,
		eventsCommand,
		initCommand,
	}
	app.Before = func(context *cli.Context) error {
		cfg, err := loadDaemonConfig(context)
		if err != nil {
			return err
		}
		if context.GlobalBool("debug") || cfg.Debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		logFile := context.GlobalString("log-file")
		if logFile == "" {
			logFile = cfg.LogFile
		}
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return err
			}
			logrus.SetOutput(f)
		}
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
