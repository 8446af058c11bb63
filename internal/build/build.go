// Package build holds the version stamped into the binary at link time.
package build

import "fmt"

// Set with -ldflags "-X go.trai.ch/oxbridge/internal/build.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Summary returns the version followed by the commit and build date.
func Summary() string {
	return fmt.Sprintf("%s (commit: %s, date: %s)", Version, Commit, Date)
}
