// Package version reports the gammatrain build version.
// Release builds set it with ldflags:
//
//	go build -ldflags "-X github.com/ramonehamilton/gammatrain/internal/version.Version=v0.3.0" ./cmd/gammatrain
package version

import "runtime/debug"

// Version is the release version, "dev" unless set at build time.
var Version = "dev"

// String returns Version, or the module version recorded in the binary
// when installed with go install.
func String() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return Version
}
