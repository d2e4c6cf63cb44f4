// Package version carries build identity and the schema/engine
// compatibility check. Modeled on the teacher's cli/internal/version
// package; the compatibility check is new, using hashicorp/go-version to
// compare the configured `engine_version` constraint against this
// binary's own version the way Terraform-style tools gate on provider
// version constraints.
package version

import (
	"fmt"
	"runtime"

	hcversion "github.com/hashicorp/go-version"
)

var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info holds version information for display.
type Info struct {
	Version   string
	BuildDate string
	GitCommit string
	GoVersion string
	Platform  string
}

// Get returns the running binary's version information.
func Get() Info {
	return Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("queryc version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

func (i Info) FullString() string {
	return fmt.Sprintf("queryc version %s\nBuild Date: %s\nGit Commit: %s\nPlatform: %s\nGo Version: %s",
		i.Version, i.BuildDate, i.GitCommit, i.Platform, i.GoVersion)
}

// CheckCompatible reports whether the running engine satisfies a version
// constraint (e.g. ">= 0.1.0, < 1.0.0"); an empty constraint always passes.
func CheckCompatible(constraint string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	c, err := hcversion.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("version: invalid engine constraint %q: %w", constraint, err)
	}
	v, err := hcversion.NewVersion(Version)
	if err != nil {
		return false, fmt.Errorf("version: invalid engine version %q: %w", Version, err)
	}
	return c.Check(v), nil
}
