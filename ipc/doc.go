// Package ipc
// Author: momentics <momentics@gmail.com>
//
// Local inter-process endpoints feeding the passthrough bridge. An endpoint
// exposes per-channel message streams of two kinds: volatile data messages,
// read straight into a caller buffer, and handle messages, a 4-byte
// little-endian handle naming a buffer registered in a BufferTable.
//
// Reads return api.ErrNoData when nothing arrives within the timeout; the
// bridge treats that as "retry later", never as a failure.
package ipc
