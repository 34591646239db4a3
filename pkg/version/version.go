package version

import (
	"fmt"
	"runtime"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "na"
)

// SetVersion sets the version information, typically via -ldflags.
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// Info returns version information
func Info() string {
	return fmt.Sprintf("Version: %s\nGit commit: %s\nGo version: %s\nOS/Arch: %s/%s\nBuild date: %s\n",
		version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH, buildDate)
}

// Version returns the version
func Version() string {
	return version
}
