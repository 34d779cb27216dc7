package common

import (
	"fmt"
	"runtime"
)

// Build metadata, injected with -ldflags "-X github.com/ternarybob/huntbot/internal/common.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the release version
func GetVersion() string {
	return Version
}

// GetFullVersion returns the version with build metadata and Go runtime
func GetFullVersion() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, runtime.Version())
}
