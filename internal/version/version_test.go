package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeBuildInfo(settings ...debug.BuildSetting) func() (*debug.BuildInfo, bool) {
	return func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
}

func noBuildInfo() (*debug.BuildInfo, bool) { return nil, false }

func TestResolveVersion_ReleaseCommitSet(t *testing.T) {
	t.Parallel()
	info := fakeBuildInfo(debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123456"})
	require.Equal(t, "1.2.0", resolveVersion("1.2.0", "abcdef0", info))
}

func TestResolveVersion_RevisionSuffix(t *testing.T) {
	t.Parallel()
	info := fakeBuildInfo(debug.BuildSetting{Key: "vcs.revision", Value: "abcdef0123456"})
	require.Equal(t, "1.2.0-abcdef0", resolveVersion("1.2.0", "unknown", info))
}

func TestResolveVersion_DirtyTree(t *testing.T) {
	t.Parallel()
	info := fakeBuildInfo(
		debug.BuildSetting{Key: "vcs.revision", Value: "abc"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	)
	require.Equal(t, "1.2.0-abc-dirty", resolveVersion("1.2.0", "", info))
}

func TestResolveVersion_NoBuildInfo(t *testing.T) {
	t.Parallel()
	require.Equal(t, "1.2.0", resolveVersion("1.2.0", "unknown", noBuildInfo))
}

func TestResolveVersion_NoRevision(t *testing.T) {
	t.Parallel()
	require.Equal(t, "1.2.0", resolveVersion("1.2.0", "unknown", fakeBuildInfo()))
}

func TestResolveVersion_EmptyBaseFallsBackToZero(t *testing.T) {
	t.Parallel()
	require.Equal(t, "0.0.0", resolveVersion("", "unknown", noBuildInfo))
}
