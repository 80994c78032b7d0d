// Package version reports which fuzzysearch build is running and which store
// drivers it was linked against.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set via ldflags at build time:
// -X github.com/Aman-CERP/fuzzysearch/pkg/version.Version=$(VERSION)
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Store driver modules whose versions are reported.
const (
	MongoDriverModule  = "go.mongodb.org/mongo-driver/v2"
	SQLiteDriverModule = "modernc.org/sqlite"
)

var readBuildInfo = debug.ReadBuildInfo

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string            `json:"version"`
	Commit    string            `json:"commit"`
	Date      string            `json:"date"`
	GoVersion string            `json:"go_version"`
	Platform  string            `json:"platform"`
	Drivers   map[string]string `json:"drivers,omitempty"`
}

// Info returns the build information. Values injected with ldflags win;
// otherwise the module version and VCS stamp recorded by the go tool are used.
func Info() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info.withUnknowns()
	}

	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = shortCommit(s.Value)
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		}
	}
	for _, dep := range bi.Deps {
		if dep.Path != MongoDriverModule && dep.Path != SQLiteDriverModule {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		if info.Drivers == nil {
			info.Drivers = make(map[string]string)
		}
		info.Drivers[dep.Path] = dep.Version
	}
	return info.withUnknowns()
}

func (b BuildInfo) withUnknowns() BuildInfo {
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}

// String formats the build information on one line.
func (b BuildInfo) String() string {
	s := fmt.Sprintf("fuzzysearch %s (commit: %s, built: %s, %s, %s)",
		b.Version, b.Commit, b.Date, b.GoVersion, b.Platform)
	if v, ok := b.Drivers[MongoDriverModule]; ok {
		s += "\n  mongo-driver " + v
	}
	if v, ok := b.Drivers[SQLiteDriverModule]; ok {
		s += "\n  sqlite " + v
	}
	return s
}

func shortCommit(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
