// File: internal/cli/root.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package cli implements the xlinkd command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/momentics/xlinkd/control"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the xlinkd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "xlinkd",
		Short: "xlinkd - xlink event dispatcher",
		Long:  "Per-link event dispatch over byte transports, with a local IPC passthrough bridge.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log_level from the configuration")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDecodeCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// loadConfig resolves the configuration: defaults, then the file, then flags.
func (o *RootOptions) loadConfig() (control.Config, error) {
	cfg := control.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = control.Load(o.ConfigPath); err != nil {
			return cfg, err
		}
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, cfg.Validate()
}
