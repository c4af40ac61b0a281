// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the xlink event wire protocol: a fixed little-endian header with
// a magic sentinel, followed (for write requests) by a separately transferred
// payload of header.Size bytes.
//
// Includes:
//   - Event type catalogue (requests and responses)
//   - Header encode/decode over caller-owned buffers
//   - Magic validation and payload-framing decisions
//
// All functions are pure and safe for concurrent use.
package protocol
