// Package version reports what build of the renderer is running.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X github.com/Microsoft/virtiogpu/internal/version.Version=...".
var (
	// Version is the complete semver.
	Version string

	// Commit is the git commit the binary was built from. When unset, the VCS
	// revision recorded by the go toolchain is used.
	Commit string
)

func commit() string {
	if Commit != "" {
		return Commit
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

// Lines returns the version and commit (whichever are known) followed by extra,
// one entry per line, in the form urfave/cli expects for an app version.
func Lines(extra ...string) string {
	var v []string
	if Version != "" {
		v = append(v, Version)
	}
	if c := commit(); c != "" {
		v = append(v, fmt.Sprintf("commit: %s", c))
	}
	v = append(v, extra...)
	return strings.Join(v, "\n")
}
