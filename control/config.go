// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Typed dispatch configuration with YAML loading, defaults and validation.

package control

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TX send modes.
const (
	// TxModeSync sends inside Submit under the per-link lock.
	TxModeSync = "sync"
	// TxModeQueued hands events to the per-link TX worker.
	TxModeQueued = "queued"
)

// Config holds parameters immutable per registry lifetime.
type Config struct {
	MaxLinks           int           `yaml:"max_links"`
	PoolCapacity       int           `yaml:"pool_capacity"`
	EventQueueCapacity int           `yaml:"event_queue_capacity"`
	IPCQueueCapacity   int           `yaml:"ipc_queue_capacity"`
	RxPollInterval     time.Duration `yaml:"rx_poll_interval"`
	JoinTimeout        time.Duration `yaml:"join_timeout"`
	TxMode             string        `yaml:"tx_mode"`
	LocalHost          bool          `yaml:"local_host"`
	IPCScratchSize     int           `yaml:"ipc_scratch_size"`
	PacketAlignment    int           `yaml:"packet_alignment"`
	PinThreads         bool          `yaml:"pin_threads"`
	LogLevel           string        `yaml:"log_level"`
	Development        bool          `yaml:"development"`
}

// Default returns the configuration of a stock xlink host.
func Default() Config {
	return Config{
		MaxLinks:           16,
		PoolCapacity:       1024,
		EventQueueCapacity: 10000,
		IPCQueueCapacity:   10000,
		RxPollInterval:     10 * time.Millisecond,
		JoinTimeout:        2 * time.Second,
		TxMode:             TxModeSync,
		LocalHost:          false,
		IPCScratchSize:     128,
		PacketAlignment:    64,
		PinThreads:         false,
		LogLevel:           "info",
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.MaxLinks <= 0 {
		errs = append(errs, fmt.Errorf("max_links must be positive, got %d", c.MaxLinks))
	}
	if c.PoolCapacity <= 0 {
		errs = append(errs, fmt.Errorf("pool_capacity must be positive, got %d", c.PoolCapacity))
	}
	if c.EventQueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("event_queue_capacity must be positive, got %d", c.EventQueueCapacity))
	}
	if c.LocalHost && c.IPCQueueCapacity < 10 {
		errs = append(errs, fmt.Errorf("ipc_queue_capacity must be at least 10, got %d", c.IPCQueueCapacity))
	}
	if c.RxPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("rx_poll_interval must be positive, got %s", c.RxPollInterval))
	}
	if c.JoinTimeout < 0 {
		errs = append(errs, fmt.Errorf("join_timeout must not be negative, got %s", c.JoinTimeout))
	}
	if c.TxMode != TxModeSync && c.TxMode != TxModeQueued {
		errs = append(errs, fmt.Errorf("tx_mode must be %q or %q, got %q", TxModeSync, TxModeQueued, c.TxMode))
	}
	if c.IPCScratchSize <= 0 {
		errs = append(errs, fmt.Errorf("ipc_scratch_size must be positive, got %d", c.IPCScratchSize))
	}
	if c.PacketAlignment <= 0 || c.PacketAlignment&(c.PacketAlignment-1) != 0 {
		errs = append(errs, fmt.Errorf("packet_alignment must be a power of two, got %d", c.PacketAlignment))
	}
	return errors.Join(errs...)
}
