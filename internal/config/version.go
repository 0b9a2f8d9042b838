package config

import (
	"fmt"
	"runtime/debug"
)

// set by the linker
var (
	version = "0.1.0"
	commit  = ""
)

type Version struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
}

func NewVersion() *Version {
	v := &Version{Version: version, Commit: commit}
	if bi, ok := debug.ReadBuildInfo(); ok {
		v.Go = bi.GoVersion
		if v.Commit == "" {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					v.Commit = s.Value
				}
			}
		}
	}
	return v
}

func (v Version) String() string {
	if v.Commit == "" {
		return fmt.Sprintf("go_tilefeed %s (%s)", v.Version, v.Go)
	}
	return fmt.Sprintf("go_tilefeed %s, commit %s (%s)", v.Version, v.Commit, v.Go)
}
