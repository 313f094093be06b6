// Package version holds the solmove build identity.
package version

import (
	"runtime"
	"runtime/debug"
)

// Set at build time:
// go build -ldflags "-X solmove/internal/version.Version=0.4.1 -X solmove/internal/version.Commit=$(git rev-parse HEAD)"
var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Build is the identity of the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Modified  bool   `json:"modified,omitempty"`
}

// Get returns the build identity. When Commit was not set by ldflags it
// falls back to the VCS stamp the Go toolchain embeds.
func Get() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	if b.Commit != "unknown" {
		return b
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Commit = s.Value
		case "vcs.time":
			if b.BuildDate == "unknown" {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// ShortCommit is the first seven characters of the commit, or "" when unknown.
func (b Build) ShortCommit() string {
	if b.Commit == "unknown" || len(b.Commit) < 7 {
		return ""
	}
	return b.Commit[:7]
}

// Info returns the version with the short commit appended when known.
func Info() string {
	b := Get()
	if c := b.ShortCommit(); c != "" {
		if b.Modified {
			c += "-dirty"
		}
		return b.Version + " (" + c + ")"
	}
	return b.Version
}

// Full returns the multi-line form printed by `solmove version`.
func Full() string {
	b := Get()
	return "solmove version " + b.Version + "\n" +
		"Commit: " + b.Commit + "\n" +
		"Built: " + b.BuildDate + "\n" +
		"Go: " + b.GoVersion
}
