// Package version exposes the CLI's build information.
package version

import (
	"fmt"
	"runtime"
)

// Version is the CLI version, overridable at build time with
// -ldflags "-X .../cli/internal/version.Version=v1.2.3".
var Version = "0.1.0"

// String returns the full human-readable version line.
func String() string {
	return fmt.Sprintf("pgward version %s (%s/%s %s)",
		Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}
