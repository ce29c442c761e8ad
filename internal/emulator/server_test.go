package emulator

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkolbeck/pixelblaze-go/internal/client"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"github.com/hkolbeck/pixelblaze-go/internal/store"
	"github.com/hkolbeck/pixelblaze-go/internal/transport"
)

type rig struct {
	srv    *Server
	ctrl   *Controller
	client *client.Client
	pushes *pushes
}

type pushes struct {
	stats    int
	patterns []string
	previews int
}

func (p *pushes) watcher() client.WatcherFuncs {
	return client.WatcherFuncs{
		Stats:         func(protocol.Stats) { p.stats++ },
		PatternChange: func(s *protocol.SequencerState) { p.patterns = append(p.patterns, s.ActiveProgram.Name) },
		PreviewFrame:  func([]byte) { p.previews++ },
	}
}

// newRig serves an emulated controller on a free port and connects a real
// websocket client to it.
func newRig(t *testing.T, frameBytes int, statsEvery time.Duration) *rig {
	t.Helper()

	ctrl, err := NewController("bench", DemoPatterns())
	require.NoError(t, err)
	ctrl.SetFrameBytes(frameBytes)

	srv := New(&Config{Host: "127.0.0.1", StatsEvery: statsEvery}, ctrl)
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	ws, err := transport.Dial(context.Background(), "ws://"+srv.Addr())
	require.NoError(t, err)

	cfg := client.DefaultConfig()
	cfg.SyncPollWait = time.Millisecond
	cfg.SendPingEvery = -1

	p := &pushes{}
	c := client.New(ws, store.NewMemStore(3, 4096), p.watcher(), cfg)
	t.Cleanup(func() { _ = c.Close() })

	return &rig{srv: srv, ctrl: ctrl, client: c, pushes: p}
}

func await(t *testing.T, c *client.Client, submit func(done func(), fail func(client.FailureCause)) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.Await(ctx, submit))
}

func TestEmulator_Ping(t *testing.T) {
	r := newRig(t, DefaultFrameBytes, -1)

	var rtt time.Duration
	await(t, r.client, func(done func(), fail func(client.FailureCause)) error {
		return r.client.Ping(func(d time.Duration) { rtt = d; done() }, fail)
	})
	assert.Less(t, rtt, 3*time.Second)
	assert.Equal(t, 1, r.srv.GetActiveConnections())
}

func TestEmulator_PatternListSpansFrames(t *testing.T) {
	// 16-byte bodies force the listing across several frames.
	r := newRig(t, 16, -1)

	var got []protocol.PatternIdentifiers
	await(t, r.client, func(done func(), fail func(client.FailureCause)) error {
		return r.client.GetPatterns(func(it *protocol.PatternIterator) {
			for it.Next() {
				got = append(got, it.Pattern())
			}
			require.NoError(t, it.Err())
			done()
		}, fail)
	})

	want := DemoPatterns()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Name, got[i].Name)
	}
}

func TestEmulator_SystemState(t *testing.T) {
	r := newRig(t, DefaultFrameBytes, -1)

	var settings *protocol.Settings
	var seq *protocol.SequencerState
	var exp *protocol.ExpanderConfig
	await(t, r.client, func(done func(), fail func(client.FailureCause)) error {
		check := func() {
			if settings != nil && seq != nil && exp != nil {
				done()
			}
		}
		return r.client.GetSystemState(client.SystemState{
			Settings:  func(s *protocol.Settings) { settings = s; check() },
			Sequencer: func(s *protocol.SequencerState) { seq = s; check() },
			Expander:  func(e *protocol.ExpanderConfig) { exp = e; check() },
		}, fail)
	})

	assert.Equal(t, "bench", settings.Name)
	assert.Equal(t, "rainbow melt", seq.ActiveProgram.Name)
	require.Len(t, seq.ActiveProgram.Controls, 1)
	assert.Equal(t, "sliderSpeed", seq.ActiveProgram.Controls[0].Name)
	assert.Equal(t, []byte{0x05, 0x00}, exp.Raw)
}

func TestEmulator_PreviewImage(t *testing.T) {
	r := newRig(t, 8, -1)
	id := DemoPatterns()[1].ID

	var jpeg []byte
	await(t, r.client, func(done func(), fail func(client.FailureCause)) error {
		return r.client.GetPreviewImage(id, func(gotID string, rd io.Reader) {
			assert.Equal(t, id, gotID)
			jpeg, _ = io.ReadAll(rd)
			done()
		}, fail)
	})
	assert.Equal(t, demoJPEG(), jpeg)
}

func TestEmulator_PlaylistAndPrev(t *testing.T) {
	r := newRig(t, DefaultFrameBytes, -1)

	var pl *protocol.Playlist
	await(t, r.client, func(done func(), fail func(client.FailureCause)) error {
		return r.client.GetPlaylist("", func(p *protocol.Playlist) { pl = p; done() }, fail)
	})
	assert.Equal(t, protocol.DefaultPlaylist, pl.ID)
	assert.Len(t, pl.Items, 3)
	assert.Equal(t, 0, pl.Position)

	// Stepping back from the first item wraps to the last.
	await(t, r.client, func(done func(), fail func(client.FailureCause)) error {
		return r.client.PrevPattern(done, fail)
	})
	assert.Eventually(t, func() bool {
		r.client.Poll()
		return r.ctrl.ActivePattern().Name == "sparkfire"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEmulator_FireAndForget(t *testing.T) {
	r := newRig(t, DefaultFrameBytes, -1)

	require.NoError(t, r.client.SetBrightness(0.25, false))
	require.NoError(t, r.client.NextPattern())

	assert.Eventually(t, func() bool {
		r.client.Poll()
		return r.ctrl.Brightness() == 0.25 && len(r.pushes.patterns) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"fireflies"}, r.pushes.patterns)
}

func TestEmulator_PushesStatsAndPreviews(t *testing.T) {
	r := newRig(t, DefaultFrameBytes, 10*time.Millisecond)

	require.NoError(t, r.client.SendFramePreviews(true))
	assert.Eventually(t, func() bool {
		r.client.Poll()
		return r.pushes.stats >= 2 && r.pushes.previews >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, r.ctrl.SendingUpdates())
}

func TestNewController_Validation(t *testing.T) {
	_, err := NewController("x", nil)
	assert.Error(t, err)

	_, err = NewController("x", []Pattern{{ID: "a\tb", Name: "bad"}})
	assert.Error(t, err)
}

func TestController_ControlsRoundTrip(t *testing.T) {
	ctrl, err := NewController("x", DemoPatterns())
	require.NoError(t, err)

	set, err := protocol.ParseText(protocol.BuildSetControls([]protocol.Control{{Name: "sliderSpeed", Value: 0.9}}, false).Payload)
	require.NoError(t, err)
	frames, err := ctrl.Handle(set)
	require.NoError(t, err)
	assert.Empty(t, frames)

	get, err := protocol.ParseText(protocol.BuildGetControls(DemoPatterns()[0].ID).Payload)
	require.NoError(t, err)
	frames, err = ctrl.Handle(get)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	msg, err := protocol.ParseText(frames[0].Payload)
	require.NoError(t, err)
	id, controls, err := protocol.ParsePatternControls(msg)
	require.NoError(t, err)
	assert.Equal(t, DemoPatterns()[0].ID, id)
	require.Len(t, controls, 1)
	assert.Equal(t, 0.9, controls[0].Value)
}
