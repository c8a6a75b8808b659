// Package version exposes build metadata.
//
// Values are injected at build time via -ldflags, for example:
//
//	go build -ldflags "-X reboosty/internal/version.Version=v1.2.0 -X reboosty/internal/version.Commit=$(git rev-parse --short HEAD)" ./cmd/reboosty
package version

import (
	"fmt"
	"runtime"
)

// These variables are set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a formatted version string suitable for -version output.
func Info() string {
	return fmt.Sprintf("reboosty %s (commit %s, built %s, %s %s/%s)",
		Version, Commit, Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
