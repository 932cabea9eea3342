// Package buildconfig exposes build metadata injected with
// -ldflags "-X github.com/Harshitk-cp/switchboard/internal/buildconfig.version=..."
package buildconfig

import "runtime"

const serviceName = "switchboard"

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string { return version }

func Commit() string { return commit }

// VersionInfo is reported by /health and logged at startup.
func VersionInfo() map[string]string {
	return map[string]string{
		"service":    serviceName,
		"version":    version,
		"commit":     commit,
		"go_version": runtime.Version(),
	}
}
