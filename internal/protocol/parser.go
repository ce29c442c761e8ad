package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// TextMessage is a decoded JSON text frame. Top-level fields are kept raw so
// shape predicates are cheap and each reply kind decodes only what it needs.
type TextMessage struct {
	Raw    []byte
	Fields map[string]json.RawMessage
}

// ParseText decodes a text frame payload.
func ParseText(data []byte) (*TextMessage, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse text message: %w", err)
	}
	return &TextMessage{Raw: data, Fields: fields}, nil
}

// Has reports whether a top-level key is present.
func (m *TextMessage) Has(key string) bool {
	_, ok := m.Fields[key]
	return ok
}

// HasPath reports whether a nested key path is present, e.g.
// HasPath("playlist", "position").
func (m *TextMessage) HasPath(keys ...string) bool {
	if len(keys) == 0 {
		return false
	}
	raw, ok := m.Fields[keys[0]]
	for _, key := range keys[1:] {
		if !ok {
			return false
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return false
		}
		raw, ok = obj[key]
	}
	return ok
}

// Decode unmarshals the whole message into v.
func (m *TextMessage) Decode(v any) error {
	return json.Unmarshal(m.Raw, v)
}

// Control is one named pattern control value.
type Control struct {
	Name  string
	Value float64
}

// Controls is an ordered control list that keeps the device's key order when
// decoded from a JSON object.
type Controls []Control

// MarshalJSON encodes the list as {"name": value, ...} in list order.
func (c Controls) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ctl := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ctl.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(ctl.Value)
		if err != nil {
			return nil, fmt.Errorf("control %q: %w", ctl.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes {"name": value, ...} preserving key order.
func (c *Controls) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("controls must be an object")
	}

	var out Controls
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var value float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("control %q: %w", key, err)
		}
		out = append(out, Control{Name: key, Value: value})
	}
	*c = out
	return nil
}

// Stats is the once-per-second telemetry the controller pushes.
type Stats struct {
	FPS              float64 `json:"fps"`
	VMErr            int     `json:"vmerr"`
	VMErrPC          int     `json:"vmerrpc"`
	MemBytes         int     `json:"mem"`
	Expansions       int     `json:"exp"`
	RenderType       int     `json:"renderType"`
	UptimeMs         int64   `json:"uptime"`
	StorageBytesUsed int     `json:"storageUsed"`
	StorageBytesSize int     `json:"storageSize"`
	RR0              int     `json:"rr0"`
	RR1              int     `json:"rr1"`
	RebootCounter    int     `json:"rebootCounter"`
}

// ActiveProgram describes the running pattern.
type ActiveProgram struct {
	Name            string   `json:"name"`
	ActiveProgramID string   `json:"activeProgramId"`
	Controls        Controls `json:"controls"`
}

// PlaylistPosition is the sequencer's view of the active playlist.
type PlaylistPosition struct {
	ID          string `json:"id"`
	Position    int    `json:"position"`
	MsTotal     int    `json:"ms"`
	RemainingMs int    `json:"remainingMs"`
}

// SequencerState is sent in reply to getConfig and pushed on pattern change.
type SequencerState struct {
	ActiveProgram ActiveProgram    `json:"activeProgram"`
	SequencerMode SequencerMode    `json:"sequencerMode"`
	RunSequencer  bool             `json:"runSequencer"`
	Playlist      PlaylistPosition `json:"playlist"`
}

// Settings is the controller configuration from getConfig.
type Settings struct {
	Name                 string  `json:"name"`
	BrandName            string  `json:"brandName"`
	PixelCount           int     `json:"pixelCount"`
	Brightness           float64 `json:"brightness"`
	MaxBrightness        int     `json:"maxBrightness"`
	ColorOrder           string  `json:"colorOrder"`
	DataSpeedHz          int     `json:"dataSpeed"`
	LedType              LedType `json:"ledType"`
	SequenceTimerMs      int     `json:"sequenceTimer"`
	TransitionDurationMs int     `json:"transitionDuration"`
	SequencerMode        int     `json:"sequencerMode"`
	RunSequencer         bool    `json:"runSequencer"`
	SimpleUIMode         bool    `json:"simpleUiMode"`
	LearningUIMode       bool    `json:"learningUiMode"`
	DiscoveryEnabled     bool    `json:"discoveryEnable"`
	Timezone             string  `json:"timezone"`
	AutoOffEnable        bool    `json:"autoOffEnable"`
	AutoOffStart         string  `json:"autoOffStart"`
	AutoOffEnd           string  `json:"autoOffEnd"`
	CPUSpeedMhz          int     `json:"cpuSpeed"`
	NetworkPowerSave     bool    `json:"networkPowerSave"`
	MapperFit            int     `json:"mapperFit"`
	LeaderID             int     `json:"leaderId"`
	NodeID               int     `json:"nodeId"`
	SoundSrc             int     `json:"soundSrc"`
	AccelSrc             int     `json:"accelSrc"`
	LightSrc             int     `json:"lightSrc"`
	AnalogSrc            int     `json:"analogSrc"`
	Exp                  int     `json:"exp"`
	Version              string  `json:"ver"`
	ChipID               int     `json:"chipId"`
}

// LedType is the strip protocol the controller drives.
type LedType int

const (
	LedNone           LedType = 0
	LedAPA102         LedType = 1
	LedWS2812         LedType = 2
	LedWS2801         LedType = 3
	LedOutputExpander LedType = 5
)

func (t LedType) String() string {
	switch t {
	case LedNone:
		return "none"
	case LedAPA102:
		return "APA102/SK9822"
	case LedWS2812:
		return "WS2812/SK6812"
	case LedWS2801:
		return "WS2801"
	case LedOutputExpander:
		return "output expander"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// PlaylistItem is one entry of a playlist.
type PlaylistItem struct {
	ID         string `json:"id"`
	DurationMs int    `json:"ms"`
}

// Playlist is the reply to getPlaylist.
type Playlist struct {
	ID                 string         `json:"id"`
	Position           int            `json:"position"`
	CurrentDurationMs  int            `json:"ms"`
	RemainingCurrentMs int            `json:"remainingMs"`
	Items              []PlaylistItem `json:"items"`
}

// PlaylistUpdate is pushed when the playlist is edited.
type PlaylistUpdate struct {
	ID    string         `json:"id"`
	Items []PlaylistItem `json:"items"`
}

// Peer is another controller seen on the network.
type Peer struct {
	ID            int    `json:"id"`
	IPAddress     string `json:"ipAddress"`
	Name          string `json:"name"`
	Version       string `json:"ver"`
	IsFollowing   bool   `json:"isFollowing"`
	NodeID        int    `json:"nodeId"`
	FollowerCount int    `json:"followerCount"`
}

// ParseStats decodes a telemetry push.
func ParseStats(m *TextMessage) (Stats, error) {
	var s Stats
	if err := m.Decode(&s); err != nil {
		return Stats{}, fmt.Errorf("failed to parse stats: %w", err)
	}
	return s, nil
}

// ParseSettings decodes the settings half of a getConfig reply.
func ParseSettings(m *TextMessage) (*Settings, error) {
	var s Settings
	if err := m.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &s, nil
}

// ParseSequencerState decodes a sequencer reply or pattern-change push.
func ParseSequencerState(m *TextMessage) (*SequencerState, error) {
	var s SequencerState
	if err := m.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse sequencer state: %w", err)
	}
	return &s, nil
}

// ParsePlaylist decodes a getPlaylist reply.
func ParsePlaylist(m *TextMessage) (*Playlist, error) {
	var wrapper struct {
		Playlist Playlist `json:"playlist"`
	}
	if err := m.Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}
	return &wrapper.Playlist, nil
}

// ParsePlaylistUpdate decodes a playlist-change push.
func ParsePlaylistUpdate(m *TextMessage) (*PlaylistUpdate, error) {
	var wrapper struct {
		Playlist PlaylistUpdate `json:"playlist"`
	}
	if err := m.Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse playlist update: %w", err)
	}
	return &wrapper.Playlist, nil
}

// ParsePeers decodes a getPeers reply.
func ParsePeers(m *TextMessage) ([]Peer, error) {
	var wrapper struct {
		Peers []Peer `json:"peers"`
	}
	if err := m.Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse peers: %w", err)
	}
	return wrapper.Peers, nil
}

// ParsePatternControls decodes {"controls": {"<patternId>": {...}}}.
func ParsePatternControls(m *TextMessage) (string, Controls, error) {
	var byPattern map[string]Controls
	raw, ok := m.Fields["controls"]
	if !ok {
		return "", nil, errors.New("message has no controls")
	}
	if err := json.Unmarshal(raw, &byPattern); err != nil {
		return "", nil, fmt.Errorf("failed to parse pattern controls: %w", err)
	}
	for id, controls := range byPattern {
		return id, controls, nil
	}
	return "", nil, nil
}
