// Package maxprocs sizes the cross-domain bridge's default scheduler count
// (spec.md §5) to the container's CPU quota rather than the host's full
// core count, the way GOMAXPROCS itself should be sized in a cgrouped
// environment. It only looks at cgroup v2 (cpu.max), which every
// distribution shipping a kernel new enough for io_uring also ships.
package maxprocs

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const cgroupV2CPUMax = "/sys/fs/cgroup/cpu.max"

// QuotaStatus reports how DefaultSchedulerCount arrived at its answer.
type QuotaStatus int

const (
	// QuotaUndefined means no cgroup quota was found; the result falls
	// back to runtime.NumCPU().
	QuotaUndefined QuotaStatus = iota
	QuotaUsed
	QuotaMinUsed
)

// cpuQuota reads /sys/fs/cgroup/cpu.max, formatted as "$MAX $PERIOD" (or
// "max $PERIOD" when unlimited), and returns max/period as a core count.
func cpuQuota(path string) (quota float64, defined bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, false, fmt.Errorf("maxprocs: empty %s", path)
	}
	fields := strings.Fields(sc.Text())
	if len(fields) != 2 {
		return 0, false, fmt.Errorf("maxprocs: malformed %s: %q", path, sc.Text())
	}
	if fields[0] == "max" {
		return 0, false, nil
	}
	max, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false, err
	}
	period, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || period == 0 {
		return 0, false, fmt.Errorf("maxprocs: malformed period in %s", path)
	}
	return max / period, true, nil
}

// DefaultSchedulerCount returns how many scheduler instances the
// cross-domain bridge should spawn by default: the cgroup v2 CPU quota,
// rounded down and floored at 1, or runtime.NumCPU() if no quota applies.
func DefaultSchedulerCount() (n int, status QuotaStatus) {
	quota, defined, err := cpuQuota(cgroupV2CPUMax)
	if err != nil || !defined {
		return runtime.NumCPU(), QuotaUndefined
	}
	n = int(math.Floor(quota))
	if n < 1 {
		return 1, QuotaMinUsed
	}
	return n, QuotaUsed
}
