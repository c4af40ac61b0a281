// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrWorkerRunning indicates Start was called on a live worker
	ErrWorkerRunning = errors.New("worker already running")

	// ErrWorkerExited indicates the worker loop returned before signalling ready
	ErrWorkerExited = errors.New("worker exited before ready")

	// ErrAffinityNotSupported indicates CPU affinity is not supported on this platform
	ErrAffinityNotSupported = errors.New("CPU affinity not supported")
)
