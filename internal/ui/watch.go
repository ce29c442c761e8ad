package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
)

// ErrConnectionLost is reported by WatchModel.Err when polling stops
// because the controller could not be reached.
var ErrConnectionLost = errors.New("connection to controller lost")

// staleAfter marks telemetry as stale; controllers push stats every second.
const staleAfter = 3 * time.Second

// WatchState collects unsolicited pushes for display. It implements
// client.Watcher.
type WatchState struct {
	Stats     protocol.Stats
	HaveStats bool
	StatsAt   time.Time

	Pattern   string
	PatternID string
	Controls  protocol.Controls

	PlaylistItems int
	Preview       []byte
	PreviewFrames int

	now func() time.Time
}

// NewWatchState returns an empty state using the wall clock.
func NewWatchState() *WatchState {
	return &WatchState{now: time.Now}
}

func (s *WatchState) OnStats(stats protocol.Stats) {
	s.Stats = stats
	s.HaveStats = true
	s.StatsAt = s.now()
}

func (s *WatchState) OnPatternChange(state *protocol.SequencerState) {
	s.Pattern = state.ActiveProgram.Name
	s.PatternID = state.ActiveProgram.ActiveProgramID
	s.Controls = state.ActiveProgram.Controls
}

func (s *WatchState) OnPlaylistChange(update *protocol.PlaylistUpdate) {
	s.PlaylistItems = len(update.Items)
}

func (s *WatchState) OnPreviewFrame(frame []byte) {
	s.Preview = frame
	s.PreviewFrames++
}

// Poller drives the client engine. *client.Client satisfies it.
type Poller interface {
	Poll() bool
	Pending() int
	LastPingRoundtrip() time.Duration
}

type pollMsg time.Time

// WatchModel is a Bubble Tea model that polls a client on a fixed interval
// and renders the pushes it receives. Poll runs inside Update, so every
// client callback happens on the program's event loop.
type WatchModel struct {
	title    string
	poller   Poller
	state    *WatchState
	interval time.Duration
	spinner  spinner.Model
	width    int
	polls    int
	err      error
}

// NewWatchModel creates a watch view. state must be the Watcher the client
// was built with.
func NewWatchModel(title string, poller Poller, state *WatchState, interval time.Duration) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = HeaderParamValueStyle.Foreground(PrimaryColor)

	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return WatchModel{
		title:    title,
		poller:   poller,
		state:    state,
		interval: interval,
		spinner:  s,
		width:    GetTerminalWidth(),
	}
}

// Err returns why the model quit, or nil if the user quit.
func (m WatchModel) Err() error {
	return m.err
}

func (m WatchModel) schedulePoll() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return pollMsg(t) })
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.schedulePoll())
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.width > MaxContentWidth {
			m.width = MaxContentWidth
		}

	case pollMsg:
		m.polls++
		if !m.poller.Poll() {
			m.err = ErrConnectionLost
			return m, tea.Quit
		}
		return m, m.schedulePoll()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder
	s := m.state

	b.WriteString(m.spinner.View() + " " + HeaderTitleStyle.UnsetPaddingLeft().Render(m.title) + "\n\n")

	row := func(key, value string) {
		b.WriteString(ResultKeyStyle.Render("  "+key) + " " + ResultValueStyle.Render(value) + "\n")
	}

	pattern := "(waiting for pattern change)"
	if s.Pattern != "" {
		pattern = fmt.Sprintf("%s (%s)", s.Pattern, s.PatternID)
	}
	row("Pattern", pattern)
	for _, c := range s.Controls {
		row("  "+c.Name, fmt.Sprintf("%.3f", c.Value))
	}

	if s.HaveStats {
		fps := fmt.Sprintf("%.1f", s.Stats.FPS)
		if s.now().Sub(s.StatsAt) > staleAfter {
			fps = WarningStyle.Render(fps + " (stale)")
		}
		row("FPS", fps)
		row("Memory", fmt.Sprintf("%d bytes", s.Stats.MemBytes))
		row("Uptime", (time.Duration(s.Stats.UptimeMs) * time.Millisecond).Truncate(time.Second).String())
		if s.Stats.VMErr != 0 {
			row("VM error", ErrorMessageStyle.Render(fmt.Sprintf("%d at pc %d", s.Stats.VMErr, s.Stats.VMErrPC)))
		}
	} else {
		row("FPS", "(waiting for stats)")
	}

	row("Pending", fmt.Sprintf("%d", m.poller.Pending()))
	if rtt := m.poller.LastPingRoundtrip(); rtt > 0 {
		row("Ping", rtt.String())
	}
	if s.PlaylistItems > 0 {
		row("Playlist", fmt.Sprintf("%d items", s.PlaylistItems))
	}

	if len(s.Preview) > 0 {
		b.WriteString("\n  " + RenderPixels(s.Preview, m.width-4) + "\n")
	}

	b.WriteString("\n" + TroubleshootingItemStyle.Render("  q to quit") + "\n")
	return b.String()
}
