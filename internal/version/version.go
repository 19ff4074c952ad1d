// Package version reports the build version of the binaries.
package version

import "runtime/debug"

// version is set at build time with
// -ldflags "-X github.com/hookdeck/cbserver/internal/version.version=v1.2.3".
var version = ""

func Version() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}
