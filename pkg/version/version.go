package version

import "fmt"

// Application version information, overridden at build time via -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

// String renders the version with the commit when one is recorded.
func String() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
