// Package version holds the build stamp of staticpress-e2e, set with
// -ldflags "-X github.com/staticpress2019/e2e/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/staticpress2019/e2e/internal/driver"
)

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"

	// Commit is the short git commit SHA.
	Commit = "unknown"

	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string   `json:"version" yaml:"version"`
	Commit    string   `json:"commit" yaml:"commit"`
	BuildDate string   `json:"build_date" yaml:"build_date"`
	GoVersion string   `json:"go_version" yaml:"go_version"`
	Drivers   []string `json:"drivers" yaml:"drivers"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Drivers:   driver.Names(),
	}
}

// String returns "v1.2.0 (abc1234)".
func String() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}

// Full adds the build date, Go version and compiled-in drivers.
func Full() string {
	i := GetInfo()
	return fmt.Sprintf("%s (%s) built %s with %s, drivers: %s",
		i.Version, i.Commit, i.BuildDate, i.GoVersion, strings.Join(i.Drivers, ", "))
}
