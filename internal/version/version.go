// Package version holds build information injected at link time.
package version

import "fmt"

// Set via -ldflags at build time:
//
//	go build -ldflags "-X llmbridge/internal/version.Version=v1.2.3 ..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a single-line human-readable version string.
func Info() string {
	return fmt.Sprintf("llmbridge %s (commit %s, built %s)", Version, Commit, Date)
}
