package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/Microsoft/virtiogpu/internal/log"
	"github.com/Microsoft/virtiogpu/internal/snapshot"
	"github.com/Microsoft/virtiogpu/internal/version"
)

const usage = `inspect virtio-gpu renderer snapshots

Every command takes the snapshot directory handed to the renderer, which holds
` + snapshot.FileName + `. The snapshot is opened read-only.`

func main() {
	app := cli.NewApp()
	app.Name = "gpusnapshot"
	app.Usage = usage
	app.Version = version.Lines(fmt.Sprintf("snapshot schema: %s", snapshot.SchemaVersion))
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "log-level",
			Value: logrus.WarnLevel.String(),
			Usage: "logging `level` for diagnostics written to stderr",
		},
	}
	app.Commands = []cli.Command{
		summaryCommand,
		contextsCommand,
		resourcesCommand,
		ringCommand,
	}
	app.Before = func(context *cli.Context) error {
		lvl, err := logrus.ParseLevel(context.GlobalString("log-level"))
		if err != nil {
			return err
		}
		logrus.SetLevel(lvl)
		logrus.SetOutput(os.Stderr)
		logrus.AddHook(log.NewHook())
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
