//go:build linux
// +build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific platform probes.

package control

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// RegisterPlatformProbes adds host CPU probes. platform.allowed_cpus is the
// size of the process affinity mask, which bounds worker pinning.
func RegisterPlatformProbes(p *Probes) {
	p.Register("platform.os", func() any { return runtime.GOOS })
	p.Register("platform.cpus", func() any { return runtime.NumCPU() })
	p.Register("platform.allowed_cpus", func() any {
		var set unix.CPUSet
		if err := unix.SchedGetaffinity(0, &set); err != nil {
			return runtime.NumCPU()
		}
		return set.Count()
	})
}
