// Package version holds build metadata injected via ldflags. Version is
// surfaced at startup logging and in the detailed health payload.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
