package pool_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/pool"
)

func TestHeapAllocatorAlignment(t *testing.T) {
	a := pool.NewHeapAllocator()
	buf, phys, err := a.Allocate(100, 64, api.MemoryNormal)
	require.NoError(t, err)
	assert.Len(t, buf, 100)
	assert.Zero(t, phys)
	assert.Zero(t, uintptr(unsafe.Pointer(&buf[0]))%64)
}

func TestHeapAllocatorDMAAddresses(t *testing.T) {
	a := pool.NewHeapAllocator()
	_, p1, err := a.Allocate(10, 64, api.MemoryDMA)
	require.NoError(t, err)
	buf2, p2, err := a.Allocate(10, 64, api.MemoryDMA)
	require.NoError(t, err)
	assert.NotZero(t, p1)
	assert.Equal(t, p1+64, p2)

	found, ok := a.Lookup(p2)
	require.True(t, ok)
	assert.Equal(t, unsafe.SliceData(buf2), unsafe.SliceData(found))
}

func TestHeapAllocatorDoubleFree(t *testing.T) {
	a := pool.NewHeapAllocator()
	buf, phys, err := a.Allocate(32, 64, api.MemoryDMA)
	require.NoError(t, err)

	require.NoError(t, a.Deallocate(buf, phys, 64, api.MemoryDMA))
	assert.ErrorIs(t, a.Deallocate(buf, phys, 64, api.MemoryDMA), pool.ErrNotAllocated)

	st := a.Stats()
	assert.Equal(t, int64(1), st.TotalAlloc)
	assert.Equal(t, int64(1), st.TotalFree)
	assert.Zero(t, st.InUse)
}

func TestHeapAllocatorKindMismatch(t *testing.T) {
	a := pool.NewHeapAllocator()
	buf, _, err := a.Allocate(8, 8, api.MemoryNormal)
	require.NoError(t, err)
	assert.ErrorIs(t, a.Deallocate(buf, 0, 8, api.MemoryDMA), pool.ErrNotAllocated)
	assert.NoError(t, a.Deallocate(buf, 0, 8, api.MemoryNormal))
}

func TestHeapAllocatorZeroSize(t *testing.T) {
	a := pool.NewHeapAllocator()
	buf, _, err := a.Allocate(0, 64, api.MemoryNormal)
	require.NoError(t, err)
	assert.Empty(t, buf)
	assert.NoError(t, a.Deallocate(buf, 0, 64, api.MemoryNormal))
}
