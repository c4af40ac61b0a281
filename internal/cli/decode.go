// File: internal/cli/decode.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/momentics/xlinkd/protocol"
)

// DecodedHeader is the decode command's JSON output.
type DecodedHeader struct {
	Valid       bool   `json:"valid"`
	Magic       uint32 `json:"magic"`
	ID          uint32 `json:"id"`
	Type        string `json:"type"`
	Channel     uint16 `json:"channel"`
	Size        uint32 `json:"size"`
	Timeout     uint32 `json:"timeout"`
	ControlData string `json:"control_data,omitempty"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a wire event header",
		Long: `Decode a hex-encoded event header as read off a link.

Whitespace in the input is ignored. WRITE_CONTROL headers also print their
inline control data.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := decodeHeader(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			_, err = fmt.Fprintf(w, "valid=%t magic=0x%08x id=0x%x type=%s chan=0x%x size=%d timeout=%d\n",
				out.Valid, out.Magic, out.ID, out.Type, out.Channel, out.Size, out.Timeout)
			if err == nil && out.ControlData != "" {
				_, err = fmt.Fprintf(w, "control=%s\n", out.ControlData)
			}
			return err
		},
	}
}

func decodeHeader(input string) (DecodedHeader, error) {
	raw, err := hex.DecodeString(strings.Join(strings.Fields(input), ""))
	if err != nil {
		return DecodedHeader{}, fmt.Errorf("invalid hex: %w", err)
	}
	var h protocol.Header
	if err := h.Decode(raw); err != nil {
		return DecodedHeader{}, fmt.Errorf("%d bytes: %w", len(raw), err)
	}
	out := DecodedHeader{
		Valid:   h.Valid(),
		Magic:   h.Magic,
		ID:      h.ID,
		Type:    h.Type.String(),
		Channel: h.Channel,
		Size:    h.Size,
		Timeout: h.Timeout,
	}
	if h.Type.CarriesControlData() {
		if err := h.DecodeControlData(raw); err != nil {
			return out, fmt.Errorf("control data: %w", err)
		}
		out.ControlData = hex.EncodeToString(h.ControlData[:h.Size])
	}
	return out, nil
}
