package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/urfave/cli"

	"github.com/Microsoft/virtiogpu/internal/appargs"
	"github.com/Microsoft/virtiogpu/internal/protocol/gfxstream"
	"github.com/Microsoft/virtiogpu/internal/snapshot"
)

type contextState struct {
	ID                  uint32            `json:"id"`
	Name                string            `json:"name"`
	Capset              string            `json:"capset"`
	AttachedResources   []uint32          `json:"attachedResources"`
	AddressSpaceHandles map[uint32]uint32 `json:"addressSpaceHandles,omitempty"`
}

func contextStates(t *snapshot.Tables) []contextState {
	s := lo.Map(t.Contexts, func(c *snapshot.ContextRecord, _ int) contextState {
		return contextState{
			ID:                  c.ID,
			Name:                c.Name,
			Capset:              gfxstream.CapsetID(c.CapsetID).String(),
			AttachedResources:   c.AttachedResources,
			AddressSpaceHandles: c.AddressSpaceHandles,
		}
	})
	slices.SortFunc(s, func(a, b contextState) int { return cmp.Compare(a.ID, b.ID) })
	return s
}

func joinIDs(ids []uint32) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(lo.Map(ids, func(id uint32, _ int) string { return fmt.Sprint(id) }), ",")
}

var contextsCommand = cli.Command{
	Name:      "contexts",
	Usage:     "lists the rendering contexts in a snapshot",
	ArgsUsage: "<snapshot-dir>",
	Flags:     []cli.Flag{formatFlag},
	Before:    appargs.Validate(appargs.RequiredNonEmpty),
	Action: func(context *cli.Context) error {
		t, _, err := loadTables(context)
		if err != nil {
			return err
		}
		s := contextStates(t)

		switch context.String("format") {
		case "table":
			w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
			fmt.Fprint(w, "ID\tNAME\tCAPSET\tRESOURCES\tASG HANDLES\n")
			for _, c := range s {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
					c.ID,
					c.Name,
					c.Capset,
					joinIDs(c.AttachedResources),
					len(c.AddressSpaceHandles))
			}
			return w.Flush()
		case "json":
			return json.NewEncoder(os.Stdout).Encode(s)
		default:
			return fmt.Errorf("invalid format option")
		}
	},
}
