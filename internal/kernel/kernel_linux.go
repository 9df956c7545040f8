//go:build linux

package kernel

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	cached    Version
	cachedErr error
	once      sync.Once
)

func parseRelease(release string) (major, minor, patch int, flavor string, err error) {
	var partial string
	n, _ := fmt.Sscanf(release, "%d.%d%s", &major, &minor, &partial)
	if n < 2 {
		err = fmt.Errorf("kernel: cannot parse release %q", release)
		return
	}
	n, _ = fmt.Sscanf(partial, ".%d%s", &patch, &flavor)
	if n < 1 {
		flavor = partial
	}
	return
}

// Get returns the running kernel's version, uname(2)'d and parsed once.
func Get() (Version, error) {
	once.Do(func() {
		uts := unix.Utsname{}
		if err := unix.Uname(&uts); err != nil {
			cachedErr = err
			return
		}
		release := string(uts.Release[:bytes.IndexByte(uts.Release[:], 0)])
		major, minor, patch, flavor, err := parseRelease(release)
		if err != nil {
			cachedErr = err
			return
		}
		cached = Version{Major: major, Minor: minor, Patch: patch, Flavor: flavor}
	})
	return cached, cachedErr
}
