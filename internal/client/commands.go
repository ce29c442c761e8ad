package client

import (
	"io"
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"go.uber.org/zap"
)

// Command methods return immediately. Replies arrive through the supplied
// callbacks during a later Poll. A nil handle discards the reply; a nil
// onFailure discards the failure. Commands that expect no reply only
// report send errors.

// GetPatterns lists every stored pattern. The iterator must be consumed
// before handle returns.
func (c *Client) GetPatterns(handle func(*protocol.PatternIterator), onFailure func(FailureCause)) error {
	return c.Submit(protocol.BuildListPrograms(),
		NewRequest(AllPatternsReply{Handle: handle}, onFailure))
}

// GetPlaylist fetches a playlist; an empty name means the default playlist.
func (c *Client) GetPlaylist(name string, handle func(*protocol.Playlist), onFailure func(FailureCause)) error {
	return c.Submit(protocol.BuildGetPlaylist(name),
		NewRequest(PlaylistReply{Handle: handle}, onFailure))
}

// GetPlaylistIndex reports the position in the default playlist.
func (c *Client) GetPlaylistIndex(handle func(int), onFailure func(FailureCause)) error {
	return c.GetPlaylist("", func(p *protocol.Playlist) {
		if handle != nil {
			handle(p.Position)
		}
	}, onFailure)
}

// SetPlaylistIndex jumps to a position in the active playlist.
func (c *Client) SetPlaylistIndex(idx int) error {
	return c.send(protocol.BuildSetPlaylistPosition(idx))
}

// NextPattern advances the sequencer.
func (c *Client) NextPattern() error {
	return c.send(protocol.BuildNextProgram())
}

// PrevPattern reads the default playlist and steps back one position,
// wrapping to the end. done, if set, runs once the step has been sent.
func (c *Client) PrevPattern(done func(), onFailure func(FailureCause)) error {
	return c.GetPlaylist("", func(p *protocol.Playlist) {
		if len(p.Items) > 0 {
			idx := (p.Position - 1 + len(p.Items)) % len(p.Items)
			if err := c.SetPlaylistIndex(idx); err != nil {
				logging.Warn("Failed to step playlist back", zap.Error(err))
				if onFailure != nil {
					onFailure(ConnectionLost)
				}
				return
			}
		}
		if done != nil {
			done()
		}
	}, onFailure)
}

// PlaySequence starts the sequencer.
func (c *Client) PlaySequence() error {
	return c.send(protocol.BuildRunSequencer(true))
}

// PauseSequence pauses the sequencer.
func (c *Client) PauseSequence() error {
	return c.send(protocol.BuildRunSequencer(false))
}

// SetSequencerMode selects how patterns advance.
func (c *Client) SetSequencerMode(mode protocol.SequencerMode) error {
	return c.send(protocol.BuildSequencerMode(mode))
}

// GetPeers lists other controllers on the network.
func (c *Client) GetPeers(handle func([]protocol.Peer), onFailure func(FailureCause)) error {
	return c.Submit(protocol.BuildGetPeers(),
		NewRequest(PeersReply{Handle: handle}, onFailure))
}

// SetBrightness sets brightness in [0, 1]; out of range values are clamped.
func (c *Client) SetBrightness(brightness float64, save bool) error {
	return c.send(protocol.BuildSetBrightness(brightness, save))
}

// SetBrightnessLimit sets the brightness cap percentage in [0, 100].
func (c *Client) SetBrightnessLimit(limit int, save bool) error {
	return c.send(protocol.BuildSetMaxBrightness(limit, save))
}

// SetPixelCount sets the number of pixels driven.
func (c *Client) SetPixelCount(pixels uint32, save bool) error {
	return c.send(protocol.BuildSetPixelCount(pixels, save))
}

// SetCurrentPatternControl sets one control on the running pattern.
func (c *Client) SetCurrentPatternControl(name string, value float64, save bool) error {
	return c.SetCurrentPatternControls([]protocol.Control{{Name: name, Value: value}}, save)
}

// SetCurrentPatternControls sets controls on the running pattern.
func (c *Client) SetCurrentPatternControls(controls []protocol.Control, save bool) error {
	return c.send(protocol.BuildSetControls(controls, save))
}

// GetCurrentPatternControls reports the running pattern's controls.
func (c *Client) GetCurrentPatternControls(handle func(patternID string, controls protocol.Controls), onFailure func(FailureCause)) error {
	return c.GetSequencerState(func(s *protocol.SequencerState) {
		if handle != nil {
			handle(s.ActiveProgram.ActiveProgramID, s.ActiveProgram.Controls)
		}
	}, onFailure)
}

// GetPatternControls reports the saved controls of one pattern.
func (c *Client) GetPatternControls(patternID string, handle func(patternID string, controls protocol.Controls), onFailure func(FailureCause)) error {
	return c.Submit(protocol.BuildGetControls(patternID),
		NewRequest(PatternControlsReply{Handle: handle}, onFailure))
}

// GetPreviewImage fetches a pattern's JPEG preview.
func (c *Client) GetPreviewImage(patternID string, handle func(patternID string, jpeg io.Reader), onFailure func(FailureCause)) error {
	return c.Submit(protocol.BuildGetPreviewImage(patternID),
		NewRequest(PreviewImageReply{Handle: handle}, onFailure))
}

// SystemState selects the parts of a getConfig reply to receive. Nil
// fields are not waited for.
type SystemState struct {
	Settings  func(*protocol.Settings)
	Sequencer func(*protocol.SequencerState)
	Expander  func(*protocol.ExpanderConfig)
}

// GetSystemState sends one getConfig request and waits for the selected
// legs of its three-part reply. onFailure runs once per failed leg.
func (c *Client) GetSystemState(want SystemState, onFailure func(FailureCause)) error {
	settings := NewRequest(SettingsReply{Handle: want.Settings}, onFailure)
	settings.Satisfied = want.Settings == nil

	sequencer := NewRequest(SequencerReply{Handle: want.Sequencer}, onFailure)
	sequencer.Satisfied = want.Sequencer == nil

	expander := NewRequest(ExpanderReply{Handle: want.Expander}, onFailure)
	expander.Satisfied = want.Expander == nil

	return c.Submit(protocol.BuildGetConfig(), settings, sequencer, expander)
}

// GetSettings fetches the controller settings.
func (c *Client) GetSettings(handle func(*protocol.Settings), onFailure func(FailureCause)) error {
	if handle == nil {
		handle = func(*protocol.Settings) {}
	}
	return c.GetSystemState(SystemState{Settings: handle}, onFailure)
}

// GetSequencerState fetches the sequencer state.
func (c *Client) GetSequencerState(handle func(*protocol.SequencerState), onFailure func(FailureCause)) error {
	if handle == nil {
		handle = func(*protocol.SequencerState) {}
	}
	return c.GetSystemState(SystemState{Sequencer: handle}, onFailure)
}

// GetExpanderConfig fetches the output expander configuration. Controllers
// without an expander never answer, so expect a TimedOut failure there.
func (c *Client) GetExpanderConfig(handle func(*protocol.ExpanderConfig), onFailure func(FailureCause)) error {
	if handle == nil {
		handle = func(*protocol.ExpanderConfig) {}
	}
	return c.GetSystemState(SystemState{Expander: handle}, onFailure)
}

// Ping asks for an ack and reports the round-trip time.
func (c *Client) Ping(handle func(time.Duration), onFailure func(FailureCause)) error {
	return c.Submit(protocol.BuildPing(),
		NewRequest(PingReply{Handle: handle}, onFailure))
}

// SendFramePreviews turns the live preview stream on or off. Frames arrive
// through Watcher.OnPreviewFrame.
func (c *Client) SendFramePreviews(enabled bool) error {
	return c.send(protocol.BuildSendUpdates(enabled))
}

// RawTextRequest sends an arbitrary command and waits for the first text
// reply match accepts.
func (c *Client) RawTextRequest(cmd map[string]any, match func(*protocol.TextMessage) bool, handle func(*protocol.TextMessage), onFailure func(FailureCause)) error {
	frame, err := protocol.BuildCommand(cmd)
	if err != nil {
		return NewEncodeError("failed to encode command", err)
	}
	return c.Submit(frame, NewRequest(RawTextReply{Match: match, Handle: handle}, onFailure))
}

// RawBinaryRequest sends an arbitrary command and waits for a binary reply
// of type replyType. With retain the reassembled buffer outlives handle
// and must be released with ReleaseBuffer; its key is returned.
func (c *Client) RawBinaryRequest(cmd map[string]any, replyType protocol.BinaryType, retain bool, handle func(io.Reader), onFailure func(FailureCause)) (string, error) {
	frame, err := protocol.BuildCommand(cmd)
	if err != nil {
		return "", NewEncodeError("failed to encode command", err)
	}
	req := NewRequest(RawBinaryReply{Type: replyType, Handle: handle}, onFailure)
	req.RetainBuffer = retain
	if err := c.Submit(frame, req); err != nil {
		return "", err
	}
	return req.BufferKey, nil
}

// RawBinaryUpload sends the contents of r as a typed binary payload,
// split into frames of at most BinaryBufferBytes.
func (c *Client) RawBinaryUpload(binType protocol.BinaryType, r io.Reader) error {
	frames, err := protocol.SplitBinary(binType, r, c.cfg.BinaryBufferBytes-protocol.BinaryHeaderSize)
	if err != nil {
		return NewEncodeError("failed to split payload", err)
	}
	for i, frame := range frames {
		if err := c.send(frame); err != nil {
			logging.Warn("Binary upload interrupted",
				zap.Stringer("type", binType),
				zap.Int("frame", i),
				zap.Int("frames", len(frames)),
			)
			return err
		}
	}
	return nil
}

// OpenRetained opens a buffer kept by RawBinaryRequest with retain.
func (c *Client) OpenRetained(key string) (io.ReadCloser, error) {
	return c.store.OpenRead(key)
}
