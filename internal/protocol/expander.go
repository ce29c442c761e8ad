package protocol

import (
	"fmt"
	"io"
)

// ExpanderChannel describes one output channel of an output expander board.
type ExpanderChannel struct {
	ChannelID   uint8
	LedType     LedType
	NumElements uint8
	ColorOrder  string
	Pixels      uint16
	StartIndex  uint16
	FrequencyHz uint32
}

// ExpanderConfig is the decoded expander-channels reply. Raw always holds
// the reassembled payload; Channels is filled only by a codec that knows the
// firmware's layout.
type ExpanderConfig struct {
	Raw      []byte
	Channels []ExpanderChannel
}

// ExpanderCodec decodes the expander-channels binary payload. The channel
// record layout varies with firmware, so callers that know theirs plug a
// codec into the client.
type ExpanderCodec interface {
	Decode(r io.Reader) (*ExpanderConfig, error)
}

// RawExpanderCodec keeps the payload bytes and decodes no channels.
type RawExpanderCodec struct{}

// Decode implements ExpanderCodec.
func (RawExpanderCodec) Decode(r io.Reader) (*ExpanderConfig, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read expander payload: %w", err)
	}
	return &ExpanderConfig{Raw: raw}, nil
}
