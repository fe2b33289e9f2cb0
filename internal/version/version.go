// Package version provides build version information for the application.
// This is a separate package to avoid import cycles between cli and fetch.
package version

import "github.com/driftbox/driftbox/internal/constants"

// Version is the build version string, set by ldflags during build.
// Format: vX.Y.Z or vX.Y.Z-dev for development builds.
var Version = "v0.1.0-dev"

// BuildTime is the build timestamp, set by ldflags during build.
var BuildTime = "unknown"

// UserAgent identifies driftbox on outgoing HTTP requests.
func UserAgent() string {
	return constants.AppName + "/" + Version
}
