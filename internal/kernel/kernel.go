// Package kernel reports the running Linux kernel's version so callers can
// gate io_uring features (fixed buffers, multishot accept, and so on) that
// only exist from a given release onward.
package kernel

// Version is a parsed `uname -r` release string: "6.1.0-18-amd64" becomes
// {Major: 6, Minor: 1, Patch: 0, Flavor: "-18-amd64"}.
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Flavor string
}

// Compare returns -1, 0, or 1 as a orders before, equal to, or after b,
// comparing Major then Minor then Patch. Flavor never participates.
func Compare(a, b Version) int {
	if a.Major != b.Major {
		return sign(a.Major - b.Major)
	}
	if a.Minor != b.Minor {
		return sign(a.Minor - b.Minor)
	}
	if a.Patch != b.Patch {
		return sign(a.Patch - b.Patch)
	}
	return 0
}

func sign(n int) int {
	if n > 0 {
		return 1
	}
	if n < 0 {
		return -1
	}
	return 0
}

// AtLeast reports whether the running kernel is at or above major.minor.patch.
// It returns false (never an error) when the version could not be determined,
// so callers treat an unknown version as too old (the scheduler's startup
// probe then reports ErrRingUnavailable).
func AtLeast(major, minor, patch int) bool {
	v, err := Get()
	if err != nil {
		return false
	}
	return Compare(v, Version{Major: major, Minor: minor, Patch: patch}) >= 0
}
