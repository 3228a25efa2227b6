// Package version reports build metadata.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/sunilpie-kumar/kustom-backend/internal/version.Version=1.0.0
//	  -X github.com/sunilpie-kumar/kustom-backend/internal/version.Commit=abc123
//	  -X github.com/sunilpie-kumar/kustom-backend/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build is the metadata of the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata. When no commit was stamped, the VCS
// revision recorded by the Go toolchain is used if present.
func Get() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if b.Commit == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					b.Commit = s.Value
				}
			}
		}
	}
	return b
}

// Info returns a formatted version string.
func Info() string {
	b := Get()
	return fmt.Sprintf("kustom %s (commit: %s, built: %s, %s)",
		b.Version, short(b.Commit), b.Date, b.Platform)
}

// ServerHeader is the value of the HTTP Server header.
func ServerHeader() string {
	return "kustom/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
