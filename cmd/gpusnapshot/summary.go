package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/blang/semver/v4"
	"github.com/samber/lo"
	"github.com/urfave/cli"

	"github.com/Microsoft/virtiogpu/internal/appargs"
	"github.com/Microsoft/virtiogpu/internal/resource"
	"github.com/Microsoft/virtiogpu/internal/snapshot"
)

type summary struct {
	Schema        string         `json:"schema"`
	Contexts      int            `json:"contexts"`
	Resources     int            `json:"resources"`
	ResourceTypes map[string]int `json:"resourceTypes"`
	RingBlobBytes uint64         `json:"ringBlobBytes"`
	RendererBytes int            `json:"rendererBytes"`
}

func summarize(t *snapshot.Tables, v semver.Version) summary {
	s := summary{
		Schema:        v.String(),
		Contexts:      len(t.Contexts),
		Resources:     len(t.Resources),
		ResourceTypes: lo.CountValuesBy(t.Resources, func(r *snapshot.ResourceRecord) string { return resource.Type(r.Type).String() }),
		RendererBytes: len(t.Renderer),
	}
	for _, r := range t.Resources {
		if r.RingBlob != nil {
			s.RingBlobBytes += uint64(len(r.RingBlob.Memory))
		}
	}
	return s
}

var summaryCommand = cli.Command{
	Name:      "summary",
	Usage:     "shows what a snapshot holds",
	ArgsUsage: "<snapshot-dir>",
	Flags:     []cli.Flag{formatFlag},
	Before:    appargs.Validate(appargs.RequiredNonEmpty),
	Action: func(context *cli.Context) error {
		t, v, err := loadTables(context)
		if err != nil {
			return err
		}
		s := summarize(t, v)

		switch context.String("format") {
		case "table":
			w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
			fmt.Fprintf(w, "SCHEMA\t%s\n", s.Schema)
			fmt.Fprintf(w, "CONTEXTS\t%d\n", s.Contexts)
			fmt.Fprintf(w, "RESOURCES\t%d\n", s.Resources)
			types := lo.Keys(s.ResourceTypes)
			slices.Sort(types)
			for _, typ := range types {
				fmt.Fprintf(w, "  %s\t%d\n", typ, s.ResourceTypes[typ])
			}
			fmt.Fprintf(w, "RING BLOB BYTES\t%d\n", s.RingBlobBytes)
			fmt.Fprintf(w, "RENDERER BYTES\t%d\n", s.RendererBytes)
			return w.Flush()
		case "json":
			return json.NewEncoder(os.Stdout).Encode(s)
		default:
			return fmt.Errorf("invalid format option")
		}
	},
}
