//go:build linux

// setaffinity_linux.go
//
// Pins the calling OS thread to one logical CPU with sched_setaffinity(2).
// Errors are swallowed: inside containers or restrictive cgroups the call
// may fail with EPERM/EINVAL and the fallback is simply "no pin".

package ring

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// setAffinity pins the *current thread* to `cpu` (0-based). Out-of-range
// indices are ignored.
func setAffinity(cpu int) {
	if cpu < 0 || cpu >= runtime.NumCPU() {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	_ = unix.SchedSetaffinity(0, &set) // pid 0 → current thread
}
