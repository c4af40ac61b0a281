//go:build !linux
// +build !linux

// control/platform_other.go
// Author: momentics <momentics@gmail.com>
//
// Platform probes for hosts without an affinity mask query.

package control

import "runtime"

// RegisterPlatformProbes adds host CPU probes.
func RegisterPlatformProbes(p *Probes) {
	p.Register("platform.os", func() any { return runtime.GOOS })
	p.Register("platform.cpus", func() any { return runtime.NumCPU() })
	p.Register("platform.allowed_cpus", func() any { return runtime.NumCPU() })
}
