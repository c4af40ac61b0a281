// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker goroutines with a start handshake and a bounded join, the wake-up
// signal between submitters and the TX worker, and Linux thread pinning.
package concurrency
