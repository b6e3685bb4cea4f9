package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/urfave/cli"

	"github.com/Microsoft/virtiogpu/internal/appargs"
	"github.com/Microsoft/virtiogpu/internal/resource"
	"github.com/Microsoft/virtiogpu/internal/snapshot"
)

type resourceState struct {
	ID        uint32  `json:"id"`
	Type      string  `json:"type"`
	Geometry  string  `json:"geometry,omitempty"`
	BlobID    uint64  `json:"blobId,omitempty"`
	BlobSize  uint64  `json:"blobSize,omitempty"`
	Backing   string  `json:"backing"`
	ContextID *uint32 `json:"contextId,omitempty"`
}

func backing(r *snapshot.ResourceRecord) string {
	switch {
	case r.RingBlob != nil:
		return fmt.Sprintf("ring blob (%s, %d bytes)", r.RingBlob.Type, len(r.RingBlob.Memory))
	case r.ExternalDescriptor != nil:
		return fmt.Sprintf("descriptor ctx=%d blob=%#x", r.ExternalDescriptor.ContextID, r.ExternalDescriptor.BlobID)
	case r.ExternalMapping != nil:
		return fmt.Sprintf("host mapping ctx=%d blob=%#x", r.ExternalMapping.ContextID, r.ExternalMapping.BlobID)
	default:
		return "guest pages"
	}
}

func resourceStates(t *snapshot.Tables, filter func(id uint32) bool) []resourceState {
	s := lo.FilterMap(t.Resources, func(r *snapshot.ResourceRecord, _ int) (resourceState, bool) {
		if !filter(r.ID) {
			return resourceState{}, false
		}
		st := resourceState{
			ID:      r.ID,
			Type:    resource.Type(r.Type).String(),
			Backing: backing(r),
		}
		if a := r.CreateArgs; a != nil {
			st.Geometry = fmt.Sprintf("%dx%dx%d fmt=%d", a.Width, a.Height, a.Depth, a.Format)
		}
		if b := r.CreateBlobArgs; b != nil {
			st.BlobID = b.BlobID
			st.BlobSize = b.Size
		}
		if r.HasContextID {
			st.ContextID = lo.ToPtr(r.ContextID)
		}
		return st, true
	})
	slices.SortFunc(s, func(a, b resourceState) int { return cmp.Compare(a.ID, b.ID) })
	return s
}

var resourcesCommand = cli.Command{
	Name:      "resources",
	Usage:     "lists the resources in a snapshot, or a single resource",
	ArgsUsage: "<snapshot-dir> [resource-id]",
	Flags:     []cli.Flag{formatFlag},
	Before:    appargs.Validate(appargs.RequiredNonEmpty, appargs.Optional(appargs.Uint32)),
	Action: func(context *cli.Context) error {
		t, _, err := loadTables(context)
		if err != nil {
			return err
		}
		filter := func(uint32) bool { return true }
		if id, ok := idArg(context, 1); ok {
			filter = func(other uint32) bool { return other == id }
		}
		s := resourceStates(t, filter)

		switch context.String("format") {
		case "table":
			w := tabwriter.NewWriter(os.Stdout, 12, 1, 3, ' ', 0)
			fmt.Fprint(w, "ID\tTYPE\tGEOMETRY\tBLOB\tCONTEXT\tBACKING\n")
			for _, r := range s {
				blob := "-"
				if r.BlobSize != 0 {
					blob = fmt.Sprintf("%#x/%d", r.BlobID, r.BlobSize)
				}
				ctxID := "-"
				if r.ContextID != nil {
					ctxID = fmt.Sprint(*r.ContextID)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					r.ID,
					r.Type,
					lo.Ternary(r.Geometry == "", "-", r.Geometry),
					blob,
					ctxID,
					r.Backing)
			}
			return w.Flush()
		case "json":
			return json.NewEncoder(os.Stdout).Encode(s)
		default:
			return fmt.Errorf("invalid format option")
		}
	},
}
