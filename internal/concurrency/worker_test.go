package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/xlinkd/api"
)

func TestWorkerStartStop(t *testing.T) {
	w := NewWorker("rx")
	iterations := make(chan struct{}, 1)
	err := w.Start(context.Background(), func(ctx context.Context, ready func()) error {
		ready()
		for {
			select {
			case <-ctx.Done():
				return nil
			case iterations <- struct{}{}:
			}
		}
	})
	require.NoError(t, err)
	require.True(t, w.Running())
	<-iterations

	require.NoError(t, w.Stop(time.Second))
	select {
	case <-w.Done():
	default:
		t.Fatal("worker not joined")
	}
	assert.False(t, w.Running())
}

func TestWorkerStartFailsBeforeReady(t *testing.T) {
	w := NewWorker("rx")
	boom := errors.New("no buffers")
	err := w.Start(context.Background(), func(ctx context.Context, ready func()) error {
		return boom
	})
	require.ErrorIs(t, err, api.ErrStartFailed)
	assert.Contains(t, err.Error(), "no buffers")
	assert.False(t, w.Running())
	assert.ErrorIs(t, w.Err(), boom)
}

func TestWorkerDoubleStart(t *testing.T) {
	w := NewWorker("tx")
	loop := func(ctx context.Context, ready func()) error {
		ready()
		<-ctx.Done()
		return nil
	}
	require.NoError(t, w.Start(context.Background(), loop))
	assert.ErrorIs(t, w.Start(context.Background(), loop), ErrWorkerRunning)
	require.NoError(t, w.Stop(time.Second))

	require.NoError(t, w.Start(context.Background(), loop), "restart after stop")
	require.NoError(t, w.Stop(time.Second))
}

func TestWorkerJoinTimeout(t *testing.T) {
	mock := clock.NewMock()
	w := NewWorker("stuck", WithClock(mock))
	release := make(chan struct{})
	require.NoError(t, w.Start(context.Background(), func(ctx context.Context, ready func()) error {
		ready()
		<-release
		return nil
	}))

	errCh := make(chan error, 1)
	go func() { errCh <- w.Stop(50 * time.Millisecond) }()

	var err error
	require.Eventually(t, func() bool {
		mock.Add(50 * time.Millisecond)
		select {
		case err = <-errCh:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, err, api.ErrJoinTimeout)

	close(release)
	<-w.Done()
}

func TestWorkerStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewWorker("idle").Stop(time.Second))
}

func TestSignalCounts(t *testing.T) {
	s := NewSignal(2)
	assert.True(t, s.Post())
	assert.True(t, s.Post())
	assert.False(t, s.Post())
	assert.Equal(t, 2, s.Pending())

	ctx := context.Background()
	require.NoError(t, s.Wait(ctx))
	require.NoError(t, s.Wait(ctx))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}
