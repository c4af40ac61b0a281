// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, metrics and debug introspection for the xlink
// dispatch core.
//
// Provides:
//   - Typed YAML configuration with defaults and validation
//   - zap logger construction
//   - Prometheus dispatch counters (nil-safe)
//   - Named state probes for snapshots
package control
