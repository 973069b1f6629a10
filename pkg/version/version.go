// Package version holds build metadata for the logsplit binary.
// The variables are stamped via ldflags at build time.
package version

import (
	"fmt"
	"runtime"
)

// Version is the release version of the binary.
// Set via -ldflags "-X github.com/logsplit/logsplit/pkg/version.Version=..."
var Version = "dev"

// GitCommit is the git commit hash the binary was built from.
// Set via -ldflags "-X github.com/logsplit/logsplit/pkg/version.GitCommit=..."
var GitCommit = "unknown"

// BuildDate is the date the binary was built.
// Set via -ldflags "-X github.com/logsplit/logsplit/pkg/version.BuildDate=..."
var BuildDate = "unknown"

// String returns the bare version string.
func String() string {
	return Version
}

// Full returns a detailed version string including build info.
func Full() string {
	return fmt.Sprintf("logsplit %s (commit %s, built %s, %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}
