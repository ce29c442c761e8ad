// Package protocol implements the Pixelblaze websocket message vocabulary.
//
// The controller speaks two kinds of websocket messages:
//
//   - Text messages carry JSON. Requests are single-key objects such as
//     {"getConfig": true}; replies and pushes are recognised by shape (a
//     "pixelCount" key means settings, "fps" means a stats push, and so on).
//   - Binary messages carry a two-byte header followed by a body:
//
//     [0]  type      BinaryType (program list, preview image, expander...)
//     [1]  position  FramePosition bitmask: FIRST=1, MIDDLE=2, LAST=4
//     [2+] body      chunk of the payload
//
//     A payload that fits in one frame is sent FIRST|LAST. Longer payloads
//     are sent FIRST, zero or more MIDDLE, then LAST.
//
// # Usage Example - Building
//
//	frame := protocol.BuildGetConfig()
//	err := transport.Send(frame)
//
// # Usage Example - Parsing
//
//	msg, err := protocol.ParseText(frame.Payload)
//	if msg.Has("fps") {
//	    stats, err := protocol.ParseStats(msg)
//	}
//
//	typ, pos, body, err := frame.ParseBinary()
//
// The client package owns correlation and reassembly; this package is
// stateless.
package protocol
