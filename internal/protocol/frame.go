package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Format is the websocket message kind. Values match the websocket opcodes
// so they can be handed straight to the transport.
type Format byte

const (
	FormatText   Format = 0x1
	FormatBinary Format = 0x2
)

func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatBinary:
		return "binary"
	default:
		return fmt.Sprintf("unknown(0x%X)", byte(f))
	}
}

// BinaryType is the device-defined tag carried in the first byte of every
// binary frame.
type BinaryType byte

const (
	BinaryPutSource        BinaryType = 1
	BinaryPutByteCode      BinaryType = 3
	BinaryPreviewImage     BinaryType = 4
	BinaryPreviewFrame     BinaryType = 5
	BinaryGetSource        BinaryType = 6
	BinaryGetProgramList   BinaryType = 7
	BinaryPutPixelMap      BinaryType = 8
	BinaryExpanderChannels BinaryType = 9
)

func (t BinaryType) String() string {
	switch t {
	case BinaryPutSource:
		return "put_source"
	case BinaryPutByteCode:
		return "put_byte_code"
	case BinaryPreviewImage:
		return "preview_image"
	case BinaryPreviewFrame:
		return "preview_frame"
	case BinaryGetSource:
		return "get_source"
	case BinaryGetProgramList:
		return "get_program_list"
	case BinaryPutPixelMap:
		return "put_pixel_map"
	case BinaryExpanderChannels:
		return "expander_channels"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// FramePosition is the bitmask in the second byte of a binary frame saying
// where the frame sits in a multi-frame payload.
type FramePosition byte

const (
	PositionFirst  FramePosition = 1
	PositionMiddle FramePosition = 2
	PositionLast   FramePosition = 4

	// PositionLone marks a payload that fits in one frame.
	PositionLone = PositionFirst | PositionLast
)

func (p FramePosition) String() string {
	switch p {
	case PositionFirst:
		return "first"
	case PositionMiddle:
		return "middle"
	case PositionLast:
		return "last"
	case PositionLone:
		return "first|last"
	default:
		return fmt.Sprintf("flags(0x%02X)", byte(p))
	}
}

// BinaryHeaderSize is the type byte plus the position byte.
const BinaryHeaderSize = 2

var (
	// ErrEmptyBinary is returned for a binary frame with no type byte.
	ErrEmptyBinary = errors.New("empty binary frame")

	// ErrShortBinaryHeader is returned when the position byte is missing.
	ErrShortBinaryHeader = errors.New("binary frame missing position byte")
)

// Frame is one discrete message on the transport.
type Frame struct {
	Format  Format
	Payload []byte
}

// TextFrame wraps data as a text message.
func TextFrame(data []byte) Frame {
	return Frame{Format: FormatText, Payload: data}
}

// BinaryFrame builds a binary message with its two-byte header.
func BinaryFrame(t BinaryType, pos FramePosition, body []byte) Frame {
	payload := make([]byte, 0, BinaryHeaderSize+len(body))
	payload = append(payload, byte(t), byte(pos))
	payload = append(payload, body...)
	return Frame{Format: FormatBinary, Payload: payload}
}

// BinaryType returns the type tag of a binary frame without validating the
// rest of the header.
func (f Frame) BinaryType() (BinaryType, bool) {
	if f.Format != FormatBinary || len(f.Payload) == 0 {
		return 0, false
	}
	return BinaryType(f.Payload[0]), true
}

// ParseBinary splits a binary frame into its type tag, position flags and
// body. The body aliases the frame payload.
func (f Frame) ParseBinary() (BinaryType, FramePosition, []byte, error) {
	if f.Format != FormatBinary {
		return 0, 0, nil, fmt.Errorf("frame is %s, not binary", f.Format)
	}
	if len(f.Payload) == 0 {
		return 0, 0, nil, ErrEmptyBinary
	}
	if len(f.Payload) < BinaryHeaderSize {
		return BinaryType(f.Payload[0]), 0, nil, ErrShortBinaryHeader
	}
	return BinaryType(f.Payload[0]), FramePosition(f.Payload[1]), f.Payload[BinaryHeaderSize:], nil
}

// String returns a debug representation of the frame
func (f Frame) String() string {
	if t, pos, body, err := f.ParseBinary(); err == nil {
		return fmt.Sprintf("Frame{Format=binary, Type=%s, Position=%s, Body=%d}", t, pos, len(body))
	}
	return fmt.Sprintf("Frame{Format=%s, Length=%d}", f.Format, len(f.Payload))
}

// SplitBinary reads r to EOF and cuts it into binary frames whose bodies are
// at most maxBody bytes. A payload that fits in one frame is flagged
// FIRST|LAST. When the data ends exactly on a frame boundary an empty LAST
// frame closes the sequence. An empty reader yields no frames.
func SplitBinary(t BinaryType, r io.Reader, maxBody int) ([]Frame, error) {
	if maxBody <= 0 {
		return nil, fmt.Errorf("invalid frame body size: %d", maxBody)
	}

	var frames []Frame
	buf := make([]byte, maxBody)
	sent := false
	for {
		n, err := io.ReadFull(r, buf)
		switch {
		case err == nil:
			pos := PositionMiddle
			if !sent {
				pos = PositionFirst
			}
			frames = append(frames, BinaryFrame(t, pos, buf[:n]))
			sent = true
		case errors.Is(err, io.ErrUnexpectedEOF):
			pos := PositionLast
			if !sent {
				pos = PositionLone
			}
			return append(frames, BinaryFrame(t, pos, buf[:n])), nil
		case errors.Is(err, io.EOF):
			if sent {
				frames = append(frames, BinaryFrame(t, PositionLast, nil))
			}
			return frames, nil
		default:
			return nil, fmt.Errorf("failed to read binary payload: %w", err)
		}
	}
}
