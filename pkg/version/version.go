// Package version holds build metadata stamped in with -ldflags, e.g.
// -X github.com/veesix-networks/segmentd/pkg/version.Version=v0.3.0.
package version

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func Full() string {
	return Version + " (" + Commit + ") built on " + Date
}

// UserAgent identifies a segmentd client binary in HTTP requests.
func UserAgent(binary string) string {
	return binary + "/" + Version
}
