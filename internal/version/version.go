// Package version holds build metadata stamped in at link time:
//
//	go build -ldflags "\
//	  -X github.com/dmaher/quotehub/internal/version.Version=$(git describe --tags --always) \
//	  -X github.com/dmaher/quotehub/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/dmaher/quotehub/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Unstamped builds report "dev".
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String renders the full build identifier for startup logs.
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, Commit, BuildTime)
}
