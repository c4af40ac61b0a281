//go:build linux

// File: internal/cli/endpoint_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cli

import "github.com/momentics/xlinkd/ipc"

func newLocalEndpoint() localEndpoint {
	return ipc.NewSocketEndpoint()
}
