package protocol

import (
	"encoding/json"
	"fmt"
)

// Command constructors for the JSON requests the controller understands.
// Each returns a ready-to-send text frame.

// DefaultPlaylist is the id the controller uses for its built-in playlist.
const DefaultPlaylist = "_defaultplaylist_"

// SequencerMode selects how the controller advances between patterns.
type SequencerMode int

const (
	SequencerOff        SequencerMode = 0
	SequencerShuffleAll SequencerMode = 1
	SequencerPlaylist   SequencerMode = 2
)

func (m SequencerMode) String() string {
	switch m {
	case SequencerOff:
		return "off"
	case SequencerShuffleAll:
		return "shuffle_all"
	case SequencerPlaylist:
		return "playlist"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// BuildCommand marshals an arbitrary command object into a text frame.
func BuildCommand(cmd map[string]any) (Frame, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal command: %w", err)
	}
	return TextFrame(data), nil
}

func mustBuild(cmd map[string]any) Frame {
	// Only called with maps of plain scalars, which always marshal.
	f, err := BuildCommand(cmd)
	if err != nil {
		panic(err)
	}
	return f
}

// BuildListPrograms asks for the (id, name) list of every stored pattern.
func BuildListPrograms() Frame {
	return mustBuild(map[string]any{"listPrograms": true})
}

// BuildGetPlaylist asks for a playlist by id.
func BuildGetPlaylist(playlistID string) Frame {
	if playlistID == "" {
		playlistID = DefaultPlaylist
	}
	return mustBuild(map[string]any{"getPlaylist": playlistID})
}

// BuildSetPlaylistPosition jumps the active playlist to idx.
func BuildSetPlaylistPosition(idx int) Frame {
	return mustBuild(map[string]any{"playlist": map[string]any{"position": idx}})
}

// BuildNextProgram advances to the next pattern.
func BuildNextProgram() Frame {
	return mustBuild(map[string]any{"nextProgram": true})
}

// BuildRunSequencer starts or pauses the sequencer.
func BuildRunSequencer(run bool) Frame {
	return mustBuild(map[string]any{"runSequencer": run})
}

// BuildSequencerMode sets the sequencer mode.
func BuildSequencerMode(mode SequencerMode) Frame {
	return mustBuild(map[string]any{"sequencerMode": int(mode)})
}

// BuildGetPeers asks for the controllers visible on the network.
func BuildGetPeers() Frame {
	return mustBuild(map[string]any{"getPeers": 1})
}

// BuildSetControls sets controls on the running pattern.
func BuildSetControls(controls []Control, save bool) Frame {
	values := make(map[string]any, len(controls))
	for _, c := range controls {
		values[c.Name] = c.Value
	}
	return mustBuild(map[string]any{"setControls": values, "save": save})
}

// BuildSetBrightness sets global brightness, clamped to [0, 1].
func BuildSetBrightness(brightness float64, save bool) Frame {
	return mustBuild(map[string]any{"brightness": clampFloat(brightness, 0, 1), "save": save})
}

// BuildSetMaxBrightness sets the brightness limit percentage, clamped to [0, 100].
func BuildSetMaxBrightness(limit int, save bool) Frame {
	return mustBuild(map[string]any{"maxBrightness": clampInt(limit, 0, 100), "save": save})
}

// BuildSetPixelCount sets the number of pixels driven.
func BuildSetPixelCount(pixels uint32, save bool) Frame {
	return mustBuild(map[string]any{"pixelCount": pixels, "save": save})
}

// BuildGetControls asks for the saved controls of one pattern.
func BuildGetControls(patternID string) Frame {
	return mustBuild(map[string]any{"getControls": patternID})
}

// BuildGetPreviewImage asks for a pattern's JPEG preview.
func BuildGetPreviewImage(patternID string) Frame {
	return mustBuild(map[string]any{"getPreviewImg": patternID})
}

// BuildGetConfig asks for settings, sequencer state and expander channels.
// The controller answers with two text messages and one binary message.
func BuildGetConfig() Frame {
	return mustBuild(map[string]any{"getConfig": true})
}

// BuildPing asks for an ack.
func BuildPing() Frame {
	return mustBuild(map[string]any{"ping": true})
}

// BuildSendUpdates toggles the live preview frame stream.
func BuildSendUpdates(enabled bool) Frame {
	return mustBuild(map[string]any{"sendUpdates": enabled})
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
