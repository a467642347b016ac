//go:build !linux

package ring

// setAffinity is a no-op where thread pinning is unavailable.
func setAffinity(int) {}
