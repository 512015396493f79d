// Package version reports the build of the running binary.
package version

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Set via -ldflags "-X github.com/bdobrica/gerald/common/version.Version=...".
var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var fillOnce sync.Once

// fill takes commit and time from the embedded VCS stamp when ldflags left
// them unset.
func fill() {
	fillOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && GitCommit == "unknown":
				GitCommit = shorten(s.Value)
			case s.Key == "vcs.time" && BuildTime == "unknown":
				BuildTime = s.Value
			}
		}
	})
}

func shorten(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// Info is the one-line description printed by --version.
func Info() string {
	fill()
	return "gerald " + Version + " (" + GitCommit + ") built " + BuildTime + " with " + runtime.Version()
}
