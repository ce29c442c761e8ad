package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
)

// echoServer answers every message with the same message type and payload.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func receiveWithin(t *testing.T, tr Transport, d time.Duration) protocol.Frame {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if f, ok := tr.ReceiveNext(); ok {
			return f
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no frame received")
	return protocol.Frame{}
}

func TestWebSocket_RoundTrip(t *testing.T) {
	srv := echoServer(t)
	ws, err := Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = ws.Close() }()

	if !ws.Connected() {
		t.Fatal("Connected() = false after Dial")
	}

	if _, ok := ws.ReceiveNext(); ok {
		t.Error("ReceiveNext() should report nothing before any traffic")
	}

	if err := ws.Send(protocol.BuildPing()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got := receiveWithin(t, ws, 2*time.Second)
	if got.Format != protocol.FormatText || string(got.Payload) != `{"ping":true}` {
		t.Errorf("echo = %s %q", got.Format, got.Payload)
	}

	bin := protocol.BinaryFrame(protocol.BinaryPreviewFrame, protocol.PositionLone, []byte{1, 2, 3})
	if err := ws.Send(bin); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got = receiveWithin(t, ws, 2*time.Second)
	if typ, _ := got.BinaryType(); typ != protocol.BinaryPreviewFrame {
		t.Errorf("binary echo type = %v", typ)
	}
}

func TestWebSocket_CloseAndReconnect(t *testing.T) {
	srv := echoServer(t)
	ws, err := Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if ws.Connected() {
		t.Error("Connected() = true after Close")
	}
	if err := ws.Send(protocol.BuildPing()); err != ErrNotConnected {
		t.Errorf("Send() after Close error = %v, want ErrNotConnected", err)
	}

	if !ws.Reconnect() {
		t.Fatal("Reconnect() = false")
	}
	defer func() { _ = ws.Close() }()

	if err := ws.Send(protocol.BuildPing()); err != nil {
		t.Fatalf("Send() after Reconnect error = %v", err)
	}
	receiveWithin(t, ws, 2*time.Second)
}

func TestWebSocket_DetectsServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	ws, err := Dial(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = ws.Close() }()

	deadline := time.Now().Add(2 * time.Second)
	for ws.Connected() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ws.Connected() {
		t.Error("Connected() should turn false after the server hangs up")
	}
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "ws://127.0.0.1:1"); err == nil {
		t.Error("Dial() to a closed port should fail")
	}
}

func TestURLForHost(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"10.0.0.5", 0, "ws://10.0.0.5:81"},
		{"desk.local", 8081, "ws://desk.local:8081"},
		{"fe80::1", 0, "ws://[fe80::1]:81"},
	}
	for _, tt := range tests {
		if got := URLForHostPort(tt.host, tt.port); got != tt.want {
			t.Errorf("URLForHostPort(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
	if got := URLForHost("10.0.0.5"); got != "ws://10.0.0.5:81" {
		t.Errorf("URLForHost() = %q", got)
	}
}

func TestFake(t *testing.T) {
	f := NewFake()
	f.PushText(`{"ack":1}`)

	if err := f.Send(protocol.BuildPing()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(f.Sent()) != 1 {
		t.Errorf("Sent() = %d frames, want 1", len(f.Sent()))
	}
	if _, ok := f.ReceiveNext(); !ok {
		t.Error("ReceiveNext() should return the pushed frame")
	}
	if _, ok := f.ReceiveNext(); ok {
		t.Error("ReceiveNext() should be empty")
	}

	f.SetConnected(false)
	f.ReconnectResults = []bool{false, true}
	if f.Reconnect() {
		t.Error("first Reconnect() should fail")
	}
	if !f.Reconnect() || !f.Connected() {
		t.Error("second Reconnect() should succeed")
	}
	if f.ReconnectCalls != 2 {
		t.Errorf("ReconnectCalls = %d, want 2", f.ReconnectCalls)
	}
}

func TestFake_ReconnectDropsUnreadFrames(t *testing.T) {
	f := NewFake()
	f.PushText(`{"ack":1}`)
	f.SetConnected(false)

	if !f.Reconnect() {
		t.Fatal("Reconnect() = false")
	}
	if f.Pending() != 0 {
		t.Errorf("Pending() = %d after Reconnect, want 0", f.Pending())
	}
}
