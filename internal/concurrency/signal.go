// File: internal/concurrency/signal.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Signal is a counting semaphore that starts at zero: every Post wakes one
// Wait. Waits are cancellable through their context.

package concurrency

import "context"

// Signal counts pending notifications up to a fixed bound.
type Signal struct {
	ch chan struct{}
}

// NewSignal creates a signal able to hold max pending posts.
func NewSignal(max int) *Signal {
	if max <= 0 {
		max = 1
	}
	return &Signal{ch: make(chan struct{}, max)}
}

// Post adds one notification. Returns false if the bound is reached.
func (s *Signal) Post() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Wait consumes one notification, blocking until one is posted or ctx ends.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of unconsumed notifications.
func (s *Signal) Pending() int {
	return len(s.ch)
}
