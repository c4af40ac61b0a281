package fake_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/fake"
)

func TestTransportRecordsWrites(t *testing.T) {
	tr := fake.NewTransport()
	ctx := context.Background()
	_, err := tr.Write(ctx, api.InterfacePCIe, 1, []byte{1, 2}, 0)
	require.NoError(t, err)
	_, err = tr.Write(ctx, api.InterfacePCIe, 2, []byte{9}, 0)
	require.NoError(t, err)
	_, err = tr.Write(ctx, api.InterfacePCIe, 1, []byte{3}, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, tr.WriteCount())
	assert.Equal(t, []byte{1, 2, 3}, tr.Sent(1))
	assert.Equal(t, []byte{9}, tr.Sent(2))
	tr.ClearWrites()
	assert.Zero(t, tr.WriteCount())
}

func TestTransportScriptedReads(t *testing.T) {
	tr := fake.NewTransport()
	ctx := context.Background()
	tr.Inject(5, []byte{1, 2, 3})

	buf := make([]byte, 2)
	n, err := tr.Read(ctx, api.InterfaceUSB, 5, buf, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, buf[:n])
	n, err = tr.Read(ctx, api.InterfaceUSB, 5, buf, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, buf[:n])

	_, err = tr.Read(ctx, api.InterfaceUSB, 5, buf, time.Millisecond)
	assert.ErrorIs(t, err, api.ErrTimeout)
}

func TestTransportInjectedFailures(t *testing.T) {
	tr := fake.NewTransport()
	ctx := context.Background()
	tr.SetWriteError(api.ErrShortTransfer)
	_, err := tr.Write(ctx, api.InterfaceUSB, 1, []byte{1}, 0)
	assert.ErrorIs(t, err, api.ErrShortTransfer)
	tr.SetWriteError(nil)

	tr.SetShortWrite(1)
	n, err := tr.Write(ctx, api.InterfaceUSB, 1, []byte{1, 2, 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, tr.Close())
	_, err = tr.Read(ctx, api.InterfaceUSB, 1, make([]byte, 1), 0)
	assert.ErrorIs(t, err, api.ErrTransportClosed)
}

func TestTransportBlockWritesDetectsOverlap(t *testing.T) {
	tr := fake.NewTransport()
	release := tr.BlockWrites()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tr.Write(context.Background(), api.InterfaceUSB, 7, []byte{1}, 0)
		}()
	}
	require.Eventually(t, func() bool { return tr.Overlaps() == 1 }, time.Second, time.Millisecond)
	release()
	wg.Wait()
	assert.Equal(t, 2, tr.WriteCount())
}
