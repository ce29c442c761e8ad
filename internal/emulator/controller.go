package emulator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"go.uber.org/zap"
)

// previewIDTerminator ends the pattern id at the start of a preview image.
const previewIDTerminator = 0xFF

// Pattern is one stored pattern.
type Pattern struct {
	ID       string
	Name     string
	Controls protocol.Controls
	Preview  []byte // JPEG bytes served for getPreviewImg
}

// Controller holds the state of an emulated controller and answers
// commands the way the firmware does. It is safe for concurrent use.
type Controller struct {
	mu           sync.Mutex
	settings     protocol.Settings
	patterns     []Pattern
	active       int
	mode         protocol.SequencerMode
	runSequencer bool
	sendUpdates  bool
	itemMs       int
	expander     []byte
	frameBytes   int
	now          func() time.Time
	activatedAt  time.Time
}

// NewController creates a controller with the given name and patterns. At
// least one pattern is required.
func NewController(name string, patterns []Pattern) (*Controller, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("emulated controller needs at least one pattern")
	}
	for _, p := range patterns {
		if strings.ContainsAny(p.ID, "\t\n") || strings.ContainsAny(p.Name, "\t\n") {
			return nil, fmt.Errorf("pattern %q: ids and names may not contain tabs or newlines", p.ID)
		}
	}

	c := &Controller{
		settings: protocol.Settings{
			Name:             name,
			BrandName:        "Pixelblaze",
			PixelCount:       64,
			Brightness:       0.5,
			MaxBrightness:    100,
			ColorOrder:       "GRB",
			LedType:          2,
			SequenceTimerMs:  15000,
			DiscoveryEnabled: true,
			Version:          "3.51",
		},
		patterns:   patterns,
		mode:       protocol.SequencerPlaylist,
		itemMs:     15000,
		expander:   []byte{0x05, 0x00},
		frameBytes: DefaultFrameBytes,
		now:        time.Now,
	}
	c.activatedAt = c.now()
	return c, nil
}

// DemoPatterns returns a small pattern set for demonstrations.
func DemoPatterns() []Pattern {
	return []Pattern{
		{ID: "3kCvJDvaRmBiXpJeq", Name: "rainbow melt", Controls: protocol.Controls{{Name: "sliderSpeed", Value: 0.5}}, Preview: demoJPEG()},
		{ID: "7pyk7AMcjZXzQ8Md6", Name: "fireflies", Controls: protocol.Controls{{Name: "sliderDensity", Value: 0.3}, {Name: "sliderSpeed", Value: 0.7}}, Preview: demoJPEG()},
		{ID: "Zj9cQDvgX6p3n7Wmt", Name: "sparkfire", Preview: demoJPEG()},
	}
}

// demoJPEG is a minimal SOI/EOI marker pair; enough for clients that only
// store the bytes.
func demoJPEG() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}
}

// SetFrameBytes caps the body size of binary replies; larger replies are
// split across frames.
func (c *Controller) SetFrameBytes(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.frameBytes = n
	}
}

// Name returns the controller name.
func (c *Controller) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Name
}

// ActivePattern returns the running pattern.
func (c *Controller) ActivePattern() Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patterns[c.active]
}

// Brightness returns the current brightness.
func (c *Controller) Brightness() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Brightness
}

// SendingUpdates reports whether a client asked for preview frames.
func (c *Controller) SendingUpdates() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendUpdates
}

// Handle applies one text command and returns the frames to send back.
// Commands the firmware does not answer return no frames.
func (c *Controller) Handle(msg *protocol.TextMessage) ([]protocol.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case msg.Has("ping"):
		return c.text(map[string]any{"ack": 1})

	case msg.Has("listPrograms"):
		var buf bytes.Buffer
		for _, p := range c.patterns {
			fmt.Fprintf(&buf, "%s\t%s\n", p.ID, p.Name)
		}
		return protocol.SplitBinary(protocol.BinaryGetProgramList, &buf, c.frameBytes)

	case msg.Has("getConfig"):
		settings, err := c.text(c.settings)
		if err != nil {
			return nil, err
		}
		sequencer, err := c.text(c.sequencerState())
		if err != nil {
			return nil, err
		}
		expander, err := protocol.SplitBinary(protocol.BinaryExpanderChannels, bytes.NewReader(c.expander), c.frameBytes)
		if err != nil {
			return nil, err
		}
		return append(append(settings, sequencer...), expander...), nil

	case msg.Has("getPlaylist"):
		return c.text(map[string]any{"playlist": c.playlist()})

	case msg.HasPath("playlist", "position"):
		var cmd struct {
			Playlist struct {
				Position int `json:"position"`
			} `json:"playlist"`
		}
		if err := msg.Decode(&cmd); err != nil {
			return nil, err
		}
		c.activate(cmd.Playlist.Position)
		return c.text(c.sequencerState())

	case msg.Has("nextProgram"):
		c.activate(c.active + 1)
		return c.text(c.sequencerState())

	case msg.Has("getControls"):
		var id string
		if err := json.Unmarshal(msg.Fields["getControls"], &id); err != nil {
			return nil, err
		}
		p, ok := c.find(id)
		if !ok {
			return nil, nil
		}
		return c.text(map[string]any{"controls": map[string]protocol.Controls{id: p.Controls}})

	case msg.Has("setControls"):
		var values map[string]float64
		if err := json.Unmarshal(msg.Fields["setControls"], &values); err != nil {
			return nil, err
		}
		controls := c.patterns[c.active].Controls
		for i := range controls {
			if v, ok := values[controls[i].Name]; ok {
				controls[i].Value = v
			}
		}
		return nil, nil

	case msg.Has("getPreviewImg"):
		var id string
		if err := json.Unmarshal(msg.Fields["getPreviewImg"], &id); err != nil {
			return nil, err
		}
		p, ok := c.find(id)
		if !ok {
			return nil, nil
		}
		body := append(append([]byte(id), previewIDTerminator), p.Preview...)
		return protocol.SplitBinary(protocol.BinaryPreviewImage, bytes.NewReader(body), c.frameBytes)

	case msg.Has("getPeers"):
		return c.text(map[string]any{"peers": []protocol.Peer{}})
	}

	// The remaining commands only change state.
	var cmd struct {
		Brightness    *float64 `json:"brightness"`
		MaxBrightness *int     `json:"maxBrightness"`
		PixelCount    *int     `json:"pixelCount"`
		RunSequencer  *bool    `json:"runSequencer"`
		SequencerMode *int     `json:"sequencerMode"`
		SendUpdates   *bool    `json:"sendUpdates"`
	}
	if err := msg.Decode(&cmd); err != nil {
		return nil, err
	}
	switch {
	case cmd.Brightness != nil:
		c.settings.Brightness = *cmd.Brightness
	case cmd.MaxBrightness != nil:
		c.settings.MaxBrightness = *cmd.MaxBrightness
	case cmd.PixelCount != nil:
		c.settings.PixelCount = *cmd.PixelCount
	case cmd.RunSequencer != nil:
		c.runSequencer = *cmd.RunSequencer
	case cmd.SequencerMode != nil:
		c.mode = protocol.SequencerMode(*cmd.SequencerMode)
	case cmd.SendUpdates != nil:
		c.sendUpdates = *cmd.SendUpdates
	default:
		logging.Debug("Emulator ignoring command", zap.ByteString("command", msg.Raw))
	}
	return nil, nil
}

// Stats returns the telemetry push for uptime.
func (c *Controller) Stats(uptime time.Duration) (protocol.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames, err := c.text(protocol.Stats{
		FPS:              60,
		MemBytes:         10240,
		UptimeMs:         uptime.Milliseconds(),
		StorageBytesUsed: 4096 * len(c.patterns),
		StorageBytesSize: 1 << 20,
	})
	if err != nil {
		return protocol.Frame{}, err
	}
	return frames[0], nil
}

// PreviewFrame returns a preview frame tinted by the active pattern index.
func (c *Controller) PreviewFrame() protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	pixels := c.settings.PixelCount
	if pixels > 100 {
		pixels = 100
	}
	body := make([]byte, 0, pixels*3)
	shift := byte(c.active * 80)
	for i := 0; i < pixels; i++ {
		v := byte(i * 255 / max(pixels-1, 1))
		body = append(body, v+shift, 255-v, shift)
	}
	return protocol.BinaryFrame(protocol.BinaryPreviewFrame, protocol.PositionLone, body)
}

func (c *Controller) text(v any) ([]protocol.Frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}
	return []protocol.Frame{protocol.TextFrame(data)}, nil
}

func (c *Controller) find(id string) (Pattern, bool) {
	for _, p := range c.patterns {
		if p.ID == id {
			return p, true
		}
	}
	return Pattern{}, false
}

func (c *Controller) activate(idx int) {
	n := len(c.patterns)
	c.active = ((idx % n) + n) % n
	c.activatedAt = c.now()
}

func (c *Controller) remainingMs() int {
	left := c.itemMs - int(c.now().Sub(c.activatedAt).Milliseconds())
	if left < 0 {
		return 0
	}
	return left
}

func (c *Controller) sequencerState() protocol.SequencerState {
	p := c.patterns[c.active]
	return protocol.SequencerState{
		ActiveProgram: protocol.ActiveProgram{
			Name:            p.Name,
			ActiveProgramID: p.ID,
			Controls:        p.Controls,
		},
		SequencerMode: c.mode,
		RunSequencer:  c.runSequencer,
		Playlist: protocol.PlaylistPosition{
			ID:          protocol.DefaultPlaylist,
			Position:    c.active,
			MsTotal:     c.itemMs,
			RemainingMs: c.remainingMs(),
		},
	}
}

func (c *Controller) playlist() protocol.Playlist {
	items := make([]protocol.PlaylistItem, len(c.patterns))
	for i, p := range c.patterns {
		items[i] = protocol.PlaylistItem{ID: p.ID, DurationMs: c.itemMs}
	}
	return protocol.Playlist{
		ID:                 protocol.DefaultPlaylist,
		Position:           c.active,
		CurrentDurationMs:  c.itemMs,
		RemainingCurrentMs: c.remainingMs(),
		Items:              items,
	}
}
