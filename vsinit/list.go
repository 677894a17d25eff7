package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/vesselrun/vessel"
)

var listCommand = cli.Command{
	Name:  "list",
	Usage: "list containers",
	Flags: []cli.Flag{
		cli.BoolFlag{Name: "all, a", Usage: "include containers that are not running"},
	},
	Action: func(context *cli.Context) {
		rt, err := loadRuntime(context)
		if err != nil {
			fatal(err)
		}
		defer rt.Close()

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "IMAGE", "COMMAND", "STATUS", "PID", "CREATED"})
		table.SetBorder(false)
		for _, s := range rt.List(context.Bool("all")) {
			table.Append([]string{
				shortID(s.ID),
				imageColumn(s),
				strings.Join(s.Spec.Args, " "),
				s.Status,
				pidColumn(s.Pid),
				s.CreatedAt.Format(time.RFC3339),
			})
		}
		table.Render()
	},
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func imageColumn(s *vessel.Snapshot) string {
	if s.Spec.Image != "" {
		return s.Spec.Image
	}
	return s.Spec.Rootfs
}

func pidColumn(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}
