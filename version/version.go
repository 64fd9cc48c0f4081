// Package version provides the dagger-pipelines version strings.
package version

import (
	_ "embed"
	"runtime"
	"strings"
)

// You can override buildVersion at compile time by using:
//
//	go run -ldflags "-X github.com/buildkite/dagger-pipelines/version.buildVersion=abc" . --version
//
// On CI, the binaries are always built with the buildVersion variable set.

//go:embed VERSION
var baseVersion string
var buildVersion string

func Version() string {
	return strings.TrimSpace(baseVersion)
}

func BuildVersion() string {
	if buildVersion == "" {
		return "x"
	}
	return buildVersion
}

// FullVersion is what --version prints.
func FullVersion() string {
	return Version() + "+" + BuildVersion() + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
