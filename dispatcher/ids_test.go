package dispatcher

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/xlinkd/protocol"
)

func TestIDGeneratorSequence(t *testing.T) {
	g := newIDGenerator()
	assert.Equal(t, protocol.FirstEventID, g.Next())
	assert.Equal(t, protocol.FirstEventID+1, g.Next())
}

func TestIDGeneratorSkipsInvalidAndWraps(t *testing.T) {
	g := newIDGenerator()
	g.next.Store(protocol.InvalidEventID)
	assert.Equal(t, protocol.InvalidEventID+1, g.Next())

	g.next.Store(math.MaxUint32)
	assert.Equal(t, uint32(math.MaxUint32), g.Next())
	assert.Equal(t, uint32(0), g.Next())
}
