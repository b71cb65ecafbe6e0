package util

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
)

// LogicalCPUs returns the number of logical processors, at least 1.
func LogicalCPUs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
