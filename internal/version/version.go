// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X github.com/nerrad567/pvrun/internal/version.Version=1.0.0 \
//	                   -X github.com/nerrad567/pvrun/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/nerrad567/pvrun/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the semantic version of the launcher.
	Version = "dev"

	// Commit is the git commit SHA at build time.
	Commit = "unknown"

	// BuildDate is the date when the binary was built.
	BuildDate = "unknown"
)

// Info returns a one-line version string.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, BuildDate)
}

// Full adds the Go toolchain and platform to Info.
func Full() string {
	return fmt.Sprintf("pvrun %s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
