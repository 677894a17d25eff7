package main

import (
	"encoding/json"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sys/unix"
)

var eventsCommand = cli.Command{
	Name:  "events",
	Usage: "stream lifecycle events as JSON lines until interrupted",
	Action: func(context *cli.Context) {
		rt, err := loadRuntime(context)
		if err != nil {
			fatal(err)
		}
		defer rt.Close()

		events, cancel := rt.Events()
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)

		enc := json.NewEncoder(os.Stdout)
		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				if err := enc.Encode(e); err != nil {
					logrus.Error(err)
				}
			case <-sigCh:
				return
			}
		}
	},
}
