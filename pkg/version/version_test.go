package version

import "testing"

func TestFull(t *testing.T) {
	Version, Commit, Date = "v1.2.0", "abc123", "2026-01-02"
	defer func() { Version, Commit, Date = "dev", "unknown", "unknown" }()

	if got, want := Full(), "v1.2.0 (abc123) built on 2026-01-02"; got != want {
		t.Fatalf("Full() = %q, want %q", got, want)
	}
	if got, want := UserAgent("segmentctl"), "segmentctl/v1.2.0"; got != want {
		t.Fatalf("UserAgent() = %q, want %q", got, want)
	}
}
