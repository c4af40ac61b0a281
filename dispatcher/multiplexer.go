// File: dispatcher/multiplexer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package dispatcher

import "github.com/momentics/xlinkd/pool"

// Multiplexer routes received events to upper-layer consumers.
//
// DeliverReceived is called from the link's RX worker once per valid header.
// On nil the multiplexer owns the event and returns it to the pool through
// Registry.DestroyEvent when done. On error the RX worker keeps the event
// and reuses it for the next read.
type Multiplexer interface {
	DeliverReceived(ev *pool.Event) error
}

// MultiplexerFunc adapts a function to Multiplexer.
type MultiplexerFunc func(ev *pool.Event) error

// DeliverReceived calls f(ev).
func (f MultiplexerFunc) DeliverReceived(ev *pool.Event) error {
	return f(ev)
}
