// Package version provides build and version information for ragctl and
// ragmcp, ported from the teacher's pkg/version.
package version

import (
	"fmt"
	"runtime"
)

// Version is set via -ldflags at build time; defaults to "dev".
var Version = "dev"

// Commit and Date are set via -ldflags at build time.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// String returns a formatted version line including commit and Go version.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, go: %s)", Version, Commit, Date, runtime.Version())
}
