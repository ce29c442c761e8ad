package client

import (
	"testing"
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"github.com/hkolbeck/pixelblaze-go/internal/store"
	"github.com/hkolbeck/pixelblaze-go/internal/transport"
)

type manualClock struct {
	now   time.Time
	slept []time.Duration
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *manualClock) Now() time.Time { return m.now }

func (m *manualClock) Sleep(d time.Duration) {
	m.slept = append(m.slept, d)
	m.now = m.now.Add(d)
}

func (m *manualClock) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

type recordingWatcher struct {
	stats     []protocol.Stats
	patterns  []*protocol.SequencerState
	playlists []*protocol.PlaylistUpdate
	previews  [][]byte
}

func (w *recordingWatcher) OnStats(s protocol.Stats) { w.stats = append(w.stats, s) }
func (w *recordingWatcher) OnPatternChange(s *protocol.SequencerState) {
	w.patterns = append(w.patterns, s)
}
func (w *recordingWatcher) OnPlaylistChange(p *protocol.PlaylistUpdate) {
	w.playlists = append(w.playlists, p)
}
func (w *recordingWatcher) OnPreviewFrame(b []byte) { w.previews = append(w.previews, b) }

type recordingObserver struct {
	submitted   map[string]int
	completed   map[string]int
	failed      map[FailureCause]int
	unsolicited map[string]int
	reconnects  []bool
	depth       int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		submitted:   map[string]int{},
		completed:   map[string]int{},
		failed:      map[FailureCause]int{},
		unsolicited: map[string]int{},
	}
}

func (o *recordingObserver) Submitted(kind string)                  { o.submitted[kind]++ }
func (o *recordingObserver) Completed(kind string, _ time.Duration) { o.completed[kind]++ }
func (o *recordingObserver) Failed(_ string, cause FailureCause)    { o.failed[cause]++ }
func (o *recordingObserver) Unsolicited(kind string)                { o.unsolicited[kind]++ }
func (o *recordingObserver) QueueDepth(n int)                       { o.depth = n }
func (o *recordingObserver) ReconnectAttempt(ok bool)               { o.reconnects = append(o.reconnects, ok) }

type harness struct {
	client   *Client
	fake     *transport.Fake
	clock    *manualClock
	store    *store.MemStore
	watcher  *recordingWatcher
	observer *recordingObserver
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReplyQueueSize = 8
	cfg.SendPingEvery = -1
	return cfg
}

func newHarness(t *testing.T, cfg Config, ms *store.MemStore) *harness {
	t.Helper()
	if ms == nil {
		ms = store.NewMemStore(3, 10000)
	}
	h := &harness{
		fake:     transport.NewFake(),
		clock:    newManualClock(),
		store:    ms,
		watcher:  &recordingWatcher{},
		observer: newRecordingObserver(),
	}
	h.client = New(h.fake, ms, h.watcher, cfg, WithClock(h.clock), WithObserver(h.observer))
	h.client.queue.misuse = func(msg string) { t.Errorf("queue misuse: %s", msg) }
	return h
}

func failureRecorder(causes *[]FailureCause) func(FailureCause) {
	return func(cause FailureCause) {
		*causes = append(*causes, cause)
	}
}
