// File: dispatcher/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package dispatcher multiplexes a fixed set of links onto per-link RX and
// TX workers.
//
// A Registry owns one Dispatcher per link id, created at Init and torn down
// once by Destroy. Each Dispatcher serializes its outbound events onto the
// transport under a per-link lock and runs an RX worker that reads fixed
// headers off the transport and hands valid ones to the Multiplexer. When
// the registry serves a local host, a passthrough Bridge converts requests
// read from a local IPC endpoint into ordinary write events.
package dispatcher
