// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Named state probes used by the CLI and tests to snapshot live dispatchers.

package control

import (
	"sort"
	"sync"
)

// Probes holds registered probe functions.
type Probes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewProbes creates an empty probe registry.
func NewProbes() *Probes {
	return &Probes{probes: make(map[string]func() any)}
}

// Register inserts or replaces a named probe.
func (p *Probes) Register(name string, fn func() any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[name] = fn
}

// Names returns the probe names in sorted order.
func (p *Probes) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.probes))
	for name := range p.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dump evaluates every probe. Probes run outside the registry lock so they
// may take component locks of their own.
func (p *Probes) Dump() map[string]any {
	p.mu.RLock()
	fns := make(map[string]func() any, len(p.probes))
	for name, fn := range p.probes {
		fns[name] = fn
	}
	p.mu.RUnlock()

	out := make(map[string]any, len(fns))
	for name, fn := range fns {
		out[name] = fn()
	}
	return out
}
