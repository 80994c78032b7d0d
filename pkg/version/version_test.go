package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	prev := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
	t.Cleanup(func() { readBuildInfo = prev })
}

func withLdflags(t *testing.T, version, commit, date string) {
	t.Helper()
	pv, pc, pd := Version, Commit, Date
	Version, Commit, Date = version, commit, date
	t.Cleanup(func() { Version, Commit, Date = pv, pc, pd })
}

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	// Given: a build with or without ldflags
	if Version == "dev" {
		return
	}

	// Then: injected versions are semver
	semverRegex := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semverRegex.MatchString(Version), "got: %s", Version)
}

func TestInfo_FallsBackToRecordedBuildInfo(t *testing.T) {
	// Given: no ldflags and a binary installed with go install
	withLdflags(t, "dev", "", "")
	withBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/Aman-CERP/fuzzysearch", Version: "v1.4.0"},
		Deps: []*debug.Module{
			{Path: MongoDriverModule, Version: "v2.3.0"},
			{Path: SQLiteDriverModule, Version: "v1.44.0"},
			{Path: "gopkg.in/yaml.v3", Version: "v3.0.1"},
		},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	})

	// When: reading the info
	info := Info()

	// Then: module version, VCS stamp and store drivers are reported
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "0123456789ab", info.Commit)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.Date)
	assert.Equal(t, map[string]string{
		MongoDriverModule:  "v2.3.0",
		SQLiteDriverModule: "v1.44.0",
	}, info.Drivers)
	assert.Contains(t, info.String(), "mongo-driver v2.3.0")
	assert.Contains(t, info.String(), "sqlite v1.44.0")
}

func TestInfo_LdflagsWin(t *testing.T) {
	withLdflags(t, "2.0.0", "abc123", "2026-03-01")
	withBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}},
	})

	info := Info()

	assert.Equal(t, "2.0.0", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2026-03-01", info.Date)
}

func TestInfo_WithoutBuildInfo(t *testing.T) {
	withLdflags(t, "dev", "", "")
	withBuildInfo(t, nil)

	info := Info()

	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.Commit)
	assert.Equal(t, "unknown", info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, "fuzzysearch dev (commit: unknown, built: unknown, "+runtime.Version()+", "+info.Platform+")", info.String())
}

func TestInfo_IsJSONSerializable(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{Deps: []*debug.Module{{Path: SQLiteDriverModule, Version: "v1.44.0"}}})

	data, err := json.Marshal(Info())
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	for _, key := range []string{"version", "commit", "date", "go_version", "platform", "drivers"} {
		assert.Contains(t, parsed, key)
	}
}
