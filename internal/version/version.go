// Package version carries the build identity stamped into output history
// attributes. The variables are set with -ldflags at build time.
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build identity as "<Version> (<GitSHA>, built <BuildTime>)".
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
