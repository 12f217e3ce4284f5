package mods

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// set with -ldflags "-X github.com/dualview/dualview/mods.versionString=v1.0.0 ..."
var (
	versionString  = "v0.0.0-dev"
	versionGitSHA  = ""
	buildTimestamp = ""
)

type Version struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
	GitSHA     string `json:"git,omitempty"`
	Built      string `json:"built,omitempty"`
	Go         string `json:"go"`
}

var (
	_version     *Version
	_versionOnce sync.Once
)

// GetVersion parses the linked version string once. An unparsable
// string yields a zero version.
func GetVersion() *Version {
	_versionOnce.Do(func() {
		_version = parseVersion(versionString)
	})
	return _version
}

func parseVersion(s string) *Version {
	ret := &Version{GitSHA: versionGitSHA, Built: buildTimestamp, Go: runtime.Version()}
	v, err := semver.NewVersion(s)
	if err != nil {
		return ret
	}
	ret.Major = int(v.Major())
	ret.Minor = int(v.Minor())
	ret.Patch = int(v.Patch())
	ret.Prerelease = v.Prerelease()
	return ret
}

func DisplayVersion() string {
	return strings.ToUpper(versionString)
}

func VersionString() string {
	if versionGitSHA == "" {
		return DisplayVersion()
	}
	return fmt.Sprintf("%s (%v %v)", DisplayVersion(), versionGitSHA, buildTimestamp)
}
