//go:build !linux

// File: internal/concurrency/affinity_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

// PinCurrentThread is not supported off Linux.
func PinCurrentThread(cpu int) error {
	return ErrAffinityNotSupported
}

// AllowedCPUs is unknown off Linux.
func AllowedCPUs() int {
	return 0
}
