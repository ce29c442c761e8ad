package client

import (
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
)

// Watcher receives unsolicited pushes from the controller.
type Watcher interface {
	OnStats(protocol.Stats)
	OnPatternChange(*protocol.SequencerState)
	OnPlaylistChange(*protocol.PlaylistUpdate)
	OnPreviewFrame([]byte)
}

// WatcherFuncs adapts optional functions to Watcher. Nil fields ignore the
// event.
type WatcherFuncs struct {
	Stats          func(protocol.Stats)
	PatternChange  func(*protocol.SequencerState)
	PlaylistChange func(*protocol.PlaylistUpdate)
	PreviewFrame   func([]byte)
}

func (w WatcherFuncs) OnStats(s protocol.Stats) {
	if w.Stats != nil {
		w.Stats(s)
	}
}

func (w WatcherFuncs) OnPatternChange(s *protocol.SequencerState) {
	if w.PatternChange != nil {
		w.PatternChange(s)
	}
}

func (w WatcherFuncs) OnPlaylistChange(p *protocol.PlaylistUpdate) {
	if w.PlaylistChange != nil {
		w.PlaylistChange(p)
	}
}

func (w WatcherFuncs) OnPreviewFrame(frame []byte) {
	if w.PreviewFrame != nil {
		w.PreviewFrame(frame)
	}
}

// Observer receives engine events for instrumentation.
type Observer interface {
	Submitted(kind string)
	Completed(kind string, latency time.Duration)
	Failed(kind string, cause FailureCause)
	Unsolicited(kind string)
	QueueDepth(n int)
	ReconnectAttempt(ok bool)
}

type nopObserver struct{}

func (nopObserver) Submitted(string)                {}
func (nopObserver) Completed(string, time.Duration) {}
func (nopObserver) Failed(string, FailureCause)     {}
func (nopObserver) Unsolicited(string)              {}
func (nopObserver) QueueDepth(int)                  {}
func (nopObserver) ReconnectAttempt(bool)           {}
