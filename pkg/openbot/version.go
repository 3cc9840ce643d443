package openbot

import "github.com/carpit680/openbot-go/internal/native"

var (
	Version  = "v0.0.0-dev"
	BuildSHA = "unknown"
)

// SDKVersion returns the semantic version populated at build time via
// ldflags. In development it defaults to v0.0.0-dev.
func SDKVersion() string {
	return Version
}

// NativeVersion returns the version string reported by the native processor
// if it was compiled in; otherwise it reports the backend as unbuilt.
func NativeVersion() string {
	if v := native.Version(); v != "" {
		return v
	}
	return "unbuilt"
}
