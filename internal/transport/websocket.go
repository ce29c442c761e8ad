package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"go.uber.org/zap"
)

const (
	// DefaultPort is the controller's websocket port.
	DefaultPort = 81

	// Time allowed to write a message to the peer
	writeWait = 5 * time.Second

	// Time allowed for the opening handshake
	handshakeTimeout = 5 * time.Second

	// Frames buffered between the read goroutine and ReceiveNext
	inboundBuffer = 256

	// Maximum message size allowed from peer
	maxMessageSize = 1 << 20
)

// ErrNotConnected is returned by Send when there is no live connection.
var ErrNotConnected = errors.New("not connected")

// URLForHost returns the websocket URL for a controller address.
func URLForHost(host string) string {
	return URLForHostPort(host, 0)
}

// URLForHostPort is URLForHost with an explicit port; 0 means DefaultPort.
func URLForHostPort(host string, port int) string {
	if port <= 0 {
		port = DefaultPort
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// WebSocket is a Transport over a gorilla/websocket connection.
type WebSocket struct {
	url    string
	dialer websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	inbound chan protocol.Frame
	closing chan struct{}

	connected atomic.Bool
}

// Dial connects to url, e.g. "ws://192.168.1.20:81".
func Dial(ctx context.Context, url string) (*WebSocket, error) {
	ws := &WebSocket{
		url: url,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
	if err := ws.connect(ctx); err != nil {
		return nil, err
	}
	return ws, nil
}

// URL returns the address this transport dials.
func (ws *WebSocket) URL() string {
	return ws.url
}

func (ws *WebSocket) connect(ctx context.Context) error {
	conn, resp, err := ws.dialer.DialContext(ctx, ws.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		logging.LogConnection(ws.url, "dial_failed")
		return fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	ws.mu.Lock()
	ws.conn = conn
	ws.inbound = make(chan protocol.Frame, inboundBuffer)
	ws.closing = make(chan struct{})
	ws.connected.Store(true)
	inbound, closing := ws.inbound, ws.closing
	ws.mu.Unlock()

	logging.LogConnection(ws.url, "connected")
	go ws.readLoop(conn, inbound, closing)
	return nil
}

func (ws *WebSocket) readLoop(conn *websocket.Conn, inbound chan<- protocol.Frame, closing <-chan struct{}) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-closing:
			default:
				logging.Info("Connection closed or error reading frame",
					zap.String("url", ws.url),
					zap.Error(err),
				)
			}
			ws.markDown(conn)
			return
		}

		var frame protocol.Frame
		switch messageType {
		case websocket.TextMessage:
			frame = protocol.TextFrame(data)
		case websocket.BinaryMessage:
			frame = protocol.Frame{Format: protocol.FormatBinary, Payload: data}
		default:
			continue
		}
		logging.LogFrame("received", frame.Format.String(), frame.Payload)

		select {
		case inbound <- frame:
		case <-closing:
			return
		}
	}
}

// markDown flags the connection as lost if conn is still the current one.
func (ws *WebSocket) markDown(conn *websocket.Conn) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.conn == conn {
		ws.connected.Store(false)
	}
}

// Send implements Transport.
func (ws *WebSocket) Send(frame protocol.Frame) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.conn == nil || !ws.connected.Load() {
		return ErrNotConnected
	}

	if err := ws.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		ws.connected.Store(false)
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := ws.conn.WriteMessage(int(frame.Format), frame.Payload); err != nil {
		ws.connected.Store(false)
		return fmt.Errorf("write frame: %w", err)
	}
	logging.LogFrame("sent", frame.Format.String(), frame.Payload)
	return nil
}

// ReceiveNext implements Transport.
func (ws *WebSocket) ReceiveNext() (protocol.Frame, bool) {
	ws.mu.Lock()
	inbound := ws.inbound
	ws.mu.Unlock()

	select {
	case frame := <-inbound:
		return frame, true
	default:
		return protocol.Frame{}, false
	}
}

// Connected implements Transport.
func (ws *WebSocket) Connected() bool {
	return ws.connected.Load()
}

// Reconnect implements Transport.
func (ws *WebSocket) Reconnect() bool {
	ws.teardown()

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	if err := ws.connect(ctx); err != nil {
		logging.Warn("Reconnect failed", zap.String("url", ws.url), zap.Error(err))
		return false
	}
	return true
}

// Close implements Transport.
func (ws *WebSocket) Close() error {
	return ws.teardown()
}

func (ws *WebSocket) teardown() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.connected.Store(false)
	if ws.conn == nil {
		return nil
	}

	close(ws.closing)
	_ = ws.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	err := ws.conn.Close()
	ws.conn = nil
	logging.LogConnection(ws.url, "closed")
	return err
}
