package version

import (
	"runtime/debug"
	"strings"
)

// Set via -ldflags at release time.
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

// Resolve returns the version string. Builds without a release commit get
// the VCS revision from the embedded build info as a suffix.
func Resolve() string {
	return resolveVersion(Version, Commit, readBuildInfo)
}

func resolveVersion(base, commit string, info func() (*debug.BuildInfo, bool)) string {
	if base == "" {
		base = "0.0.0"
	}
	if commit != "" && commit != "unknown" {
		return base
	}

	suffix := vcsSuffix(info)
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}

func vcsSuffix(info func() (*debug.BuildInfo, bool)) string {
	bi, ok := info()
	if !ok || bi == nil {
		return ""
	}

	var revision string
	var dirty bool
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return ""
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if dirty {
		return strings.Join([]string{revision, "dirty"}, "-")
	}
	return revision
}

func readBuildInfo() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
