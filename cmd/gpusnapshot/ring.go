package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/Microsoft/virtiogpu/internal/appargs"
	"github.com/Microsoft/virtiogpu/internal/snapshot"
)

var ringCommand = cli.Command{
	Name:      "ring",
	Usage:     "writes the saved memory of a ring blob resource",
	ArgsUsage: "<snapshot-dir> <resource-id>",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "output, o",
			Usage: "write to `file` instead of stdout",
		},
	},
	Before: appargs.Validate(appargs.RequiredNonEmpty, appargs.Uint32),
	Action: func(context *cli.Context) error {
		t, _, err := loadTables(context)
		if err != nil {
			return err
		}
		id, _ := idArg(context, 1)
		mem, err := ringMemory(t, id)
		if err != nil {
			return err
		}

		if p := context.String("output"); p != "" {
			return os.WriteFile(p, mem, 0o600)
		}
		_, err = os.Stdout.Write(mem)
		return err
	},
}

func ringMemory(t *snapshot.Tables, id uint32) ([]byte, error) {
	for _, r := range t.Resources {
		if r.ID != id {
			continue
		}
		if r.RingBlob == nil {
			return nil, fmt.Errorf("resource %d is not a ring blob", id)
		}
		return r.RingBlob.Memory, nil
	}
	return nil, fmt.Errorf("resource %d not found", id)
}
