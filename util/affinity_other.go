//go:build !linux

package util

import "runtime"

// PinToCPU locks the calling goroutine to its OS thread. Restricting the
// thread to a CPU is only supported on linux.
func PinToCPU(cpu int) error {
	if cpu >= 0 {
		runtime.LockOSThread()
	}
	return nil
}
