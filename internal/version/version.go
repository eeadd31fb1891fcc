package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Version is the release version, overridable at build time
var Version = "dev"

// Info holds the build identity reported in logs and traces
type Info struct {
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
	Modified  bool
}

var (
	once sync.Once
	info Info
)

// Get returns the build identity, resolved once from the binary's embedded
// VCS information
func Get() Info {
	once.Do(func() {
		info = Info{
			Version:   Version,
			GitCommit: "unknown",
			BuildTime: "unknown",
			GoVersion: runtime.Version(),
		}
		buildInfo, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.GitCommit = setting.Value
			case "vcs.time":
				info.BuildTime = setting.Value
			case "vcs.modified":
				info.Modified = setting.Value == "true"
			}
		}
	})
	return info
}

// String returns a one-line version summary
func String() string {
	i := Get()
	dirty := ""
	if i.Modified {
		dirty = "-dirty"
	}
	return fmt.Sprintf("tieredstore %s (commit: %s%s, built: %s, go: %s)",
		i.Version, i.GitCommit, dirty, i.BuildTime, i.GoVersion)
}
