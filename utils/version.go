// Package utils holds build metadata injected at link time.
package utils

import (
	"fmt"
	"runtime"
)

// Defaults until main calls SetVersion with the values injected by -ldflags.
var (
	version   = "0.0.0"
	branch    = "unknown"
	commit    = "unknown"
	buildDate = "unknown"
	arch      = runtime.GOOS + "/" + runtime.GOARCH
)

// Version describes the running build.
type Version struct {
	Str     string         `json:"str"`
	Details VersionDetails `json:"obj"`
}

type VersionDetails struct {
	Version   string `json:"version"`
	Branch    string `json:"branch"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Arch      string `json:"arch"`
}

// SetVersion populates the package-level version variables. Empty values
// keep their defaults.
func SetVersion(versionStr, branchStr, commitStr, buildDateStr, archStr string) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&version, versionStr)
	set(&branch, branchStr)
	set(&commit, commitStr)
	set(&buildDate, buildDateStr)
	set(&arch, archStr)
}

// GetVersion constructs and returns the version information for the service.
func GetVersion() Version {
	short := commit
	if len(short) > 7 {
		short = short[:7]
	}
	return Version{
		Str: fmt.Sprintf("%s.%s.%s.%s.%s", version, branch, short, buildDate, arch),
		Details: VersionDetails{
			Version:   version,
			Branch:    branch,
			Commit:    commit,
			BuildDate: buildDate,
			Arch:      arch,
		},
	}
}
