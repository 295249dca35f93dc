// Package version holds build-time version information, injected via
// -ldflags at release time.
package version

var (
	// Version is the semantic version of the build.
	Version = "dev"
	// Commit is the short git commit hash of the build.
	Commit = "unknown"
)
