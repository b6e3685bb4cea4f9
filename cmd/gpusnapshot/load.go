package main

import (
	gcontext "context"
	"strconv"

	"github.com/blang/semver/v4"
	"github.com/urfave/cli"

	"github.com/Microsoft/virtiogpu/internal/snapshot"
)

const formatOptions = `table or json`

var formatFlag = cli.StringFlag{
	Name:  "format, f",
	Value: "table",
	Usage: `select one of: ` + formatOptions,
}

// loadTables reads the snapshot in the directory named by the first argument, along
// with the schema version it was written with.
func loadTables(context *cli.Context) (*snapshot.Tables, semver.Version, error) {
	s, err := snapshot.OpenReadOnly(context.Args().First())
	if err != nil {
		return nil, semver.Version{}, err
	}
	defer s.Close()
	v, err := s.Version()
	if err != nil {
		return nil, semver.Version{}, err
	}
	t, err := s.Load(gcontext.Background())
	return t, v, err
}

// idArg parses the argument at i, which the command's validators already checked.
func idArg(context *cli.Context, i int) (uint32, bool) {
	if len(context.Args()) <= i {
		return 0, false
	}
	id, err := strconv.ParseUint(context.Args().Get(i), 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(id), true
}
