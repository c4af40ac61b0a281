// File: internal/concurrency/worker.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker runs one long-lived blocking loop on its own OS thread. Start waits
// for the loop to signal ready (or fail), Stop cancels the loop's context and
// joins it within a bounded wait. A loop that does not return in time is
// abandoned and reported with api.ErrJoinTimeout.

package concurrency

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/momentics/xlinkd/api"
)

// LoopFunc is a worker body. It must call ready exactly once when it is
// able to serve, and return when ctx is cancelled.
type LoopFunc func(ctx context.Context, ready func()) error

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithClock sets the clock used for the bounded join.
func WithClock(c clock.Clock) WorkerOption {
	return func(w *Worker) { w.clock = c }
}

// WithCPU pins the worker's OS thread to cpu. Negative disables pinning.
func WithCPU(cpu int) WorkerOption {
	return func(w *Worker) { w.cpu = cpu }
}

// Worker owns one goroutine locked to one OS thread.
type Worker struct {
	name    string
	clock   clock.Clock
	cpu     int
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	running atomic.Bool
}

// NewWorker creates an idle worker.
func NewWorker(name string, opts ...WorkerOption) *Worker {
	w := &Worker{
		name:  name,
		clock: clock.New(),
		cpu:   -1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the worker name.
func (w *Worker) Name() string {
	return w.name
}

// Running reports whether the loop goroutine is alive.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start spawns the loop and blocks until it calls ready or returns.
func (w *Worker) Start(parent context.Context, fn LoopFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running.CompareAndSwap(false, true) {
		return ErrWorkerRunning
	}

	ctx, cancel := context.WithCancel(parent)
	readyCh := make(chan error, 1)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.err = nil

	go func() {
		var once sync.Once
		signal := func(err error) { once.Do(func() { readyCh <- err }) }
		defer func() {
			w.running.Store(false)
			close(done)
		}()

		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if w.cpu >= 0 {
			if err := PinCurrentThread(w.cpu); err != nil {
				signal(fmt.Errorf("pin %s to cpu %d: %w", w.name, w.cpu, err))
				return
			}
		}

		err := fn(ctx, func() { signal(nil) })
		w.err = err
		if err == nil {
			err = ErrWorkerExited
		}
		signal(err)
	}()

	if err := <-readyCh; err != nil {
		cancel()
		<-done
		return fmt.Errorf("%w: %s: %w", api.ErrStartFailed, w.name, err)
	}
	return nil
}

// Stop cancels the loop and waits up to timeout for it to return.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	if timeout <= 0 {
		<-done
		return nil
	}
	timer := w.clock.Timer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s after %s", api.ErrJoinTimeout, w.name, timeout)
	}
}

// Done is closed when the loop goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Err returns the loop's return value once it has exited.
func (w *Worker) Err() error {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return w.err
	default:
		return nil
	}
}
