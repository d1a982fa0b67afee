// Package version holds the build identity of smartrelay: the release
// version, the source revision, and the strings derived from them that are
// sent to the network.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at link time:
//
//	go build -ldflags="-X github.com/muurk/smartrelay/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/smartrelay/internal/version.Commit=abc123"
//
// Unset values are taken from the module build info, then default to
// "dev" and "unknown".
var (
	Version = ""
	Commit  = ""
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		Version, Commit = resolve(Version, Commit, info)
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// resolve fills in whichever of version and commit are empty from the
// build info. `go install module@vX` records the module version; a build
// from a checkout records the VCS revision.
func resolve(version, commit string, info *debug.BuildInfo) (string, string) {
	if version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	if commit != "" {
		return version, commit
	}

	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if commit != "" && dirty {
		commit += "-dirty"
	}
	return version, commit
}

// Full returns the version with its commit.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// ServerHeader is the SERVER value sent in SSDP responses and HTTP headers,
// in the "OS/version UPnP/1.0 product/version" form UPnP expects.
func ServerHeader() string {
	return fmt.Sprintf("%s/%s UPnP/1.0 smartrelay/%s", runtime.GOOS, runtime.GOARCH, Version)
}
