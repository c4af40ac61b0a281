package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/pool"
)

func TestEventPoolConservation(t *testing.T) {
	const capacity = 16
	p := pool.NewEventPool(3, capacity)
	require.Equal(t, capacity, p.Available())

	held := make([]*pool.Event, 0, capacity)
	for i := 0; i < capacity; i++ {
		ev, err := p.Acquire()
		require.NoError(t, err)
		assert.Equal(t, uint32(3), ev.LinkID)
		held = append(held, ev)
		assert.Equal(t, capacity, p.Available()+len(held))
	}

	_, err := p.Acquire()
	assert.ErrorIs(t, err, api.ErrPoolExhausted)

	for _, ev := range held {
		p.Release(ev)
	}
	assert.Equal(t, capacity, p.Available())
}

func TestEventPoolAcquireResetsPayload(t *testing.T) {
	p := pool.NewEventPool(0, 1)
	ev, err := p.Acquire()
	require.NoError(t, err)
	ev.SetPayload([]byte{1}, 0x42, true)
	ev.Origin = api.OriginRX
	p.Release(ev)

	ev, err = p.Acquire()
	require.NoError(t, err)
	assert.Nil(t, ev.Data)
	assert.Zero(t, ev.PhysAddr)
	assert.False(t, ev.OwnsPayload())
	assert.Equal(t, api.OriginTX, ev.Origin)
}

func TestEventPoolDrainOnce(t *testing.T) {
	p := pool.NewEventPool(0, 4)
	inFlight, err := p.Acquire()
	require.NoError(t, err)

	assert.Equal(t, 3, p.Drain())
	assert.Equal(t, 0, p.Drain(), "second drain frees nothing")

	_, err = p.Acquire()
	assert.ErrorIs(t, err, api.ErrPoolExhausted)

	p.Release(inFlight)
	assert.Equal(t, int64(1), p.LateReleases())
	assert.Equal(t, 0, p.Available())
}

func TestEventMemoryKind(t *testing.T) {
	var ev pool.Event
	assert.Equal(t, api.MemoryNormal, ev.MemoryKind())
	ev.SetPayload(make([]byte, 4), 0x1000, true)
	assert.Equal(t, api.MemoryDMA, ev.MemoryKind())
	assert.True(t, ev.OwnsPayload())
}
