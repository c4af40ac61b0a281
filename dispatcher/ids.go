// File: dispatcher/ids.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatcher

import (
	"sync/atomic"

	"github.com/momentics/xlinkd/protocol"
)

// idGenerator hands out TX event ids. The counter wraps on overflow, so ids
// are not unique over the lifetime of a registry; peers treat them as
// advisory. The invalid-id sentinel is skipped.
type idGenerator struct {
	next atomic.Uint32
}

func newIDGenerator() *idGenerator {
	g := &idGenerator{}
	g.next.Store(protocol.FirstEventID)
	return g
}

func (g *idGenerator) Next() uint32 {
	for {
		id := g.next.Add(1) - 1
		if id != protocol.InvalidEventID {
			return id
		}
	}
}
