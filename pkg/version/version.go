// Package version carries the build stamp set through -ldflags, e.g.
//
//	go build -ldflags "-X github.com/frostdev-ops/pma-homesim/pkg/version.Version=1.2.0"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// BuildInfo is reported by /api/v1/system/info.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// commit falls back to the VCS stamp the toolchain embeds when no commit
// was passed at link time.
func commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}

// GetVersion returns the release version, or dev-<short commit> for
// unreleased builds.
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	c := commit()
	if len(c) > 8 {
		c = c[:8]
	}
	return "dev-" + c
}

func GetFullVersion() string {
	date := BuildDate
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s, go: %s)", GetVersion(), commit(), date, runtime.Version())
}

func GetBuildInfo() BuildInfo {
	date := BuildDate
	if date == "" {
		date = "unknown"
	}
	return BuildInfo{
		Version:   GetVersion(),
		GitCommit: commit(),
		BuildDate: date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
