package emulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"github.com/hkolbeck/pixelblaze-go/internal/protocol"
	"go.uber.org/zap"
)

const (
	// DefaultPort is the controller websocket port.
	DefaultPort = 81

	// DefaultFrameBytes is the largest binary body the firmware sends in
	// one frame.
	DefaultFrameBytes = 8192

	// DefaultStatsEvery is the firmware's telemetry push interval.
	DefaultStatsEvery = time.Second

	writeWait = 5 * time.Second
)

// Config holds the emulator server configuration
type Config struct {
	Host       string
	Port       int           // 0 picks a free port
	StatsEvery time.Duration // Telemetry push interval, negative disables
}

// Server serves one emulated controller over websocket.
type Server struct {
	config      *Config
	ctrl        *Controller
	listener    net.Listener
	http        *http.Server
	upgrader    websocket.Upgrader
	started     time.Time
	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
}

// New creates a new Server instance
func New(config *Config, ctrl *Controller) *Server {
	if config.StatsEvery == 0 {
		config.StatsEvery = DefaultStatsEvery
	}
	s := &Server{
		config:      config,
		ctrl:        ctrl,
		activeConns: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.http = &http.Server{
		Handler:           http.HandlerFunc(s.handleConnection),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Listen binds the listening socket. Addr is valid afterwards.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.started = time.Now()
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("emulator: Serve called before Listen")
	}
	logging.Info("Emulated controller listening",
		zap.String("addr", s.Addr()),
		zap.String("name", s.ctrl.Name()),
	)
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens and serves until interrupted.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve()
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping emulator...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// connWriter serializes writes; gorilla allows one concurrent writer.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *connWriter) write(frame protocol.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return w.conn.WriteMessage(int(frame.Format), frame.Payload)
}

// handleConnection upgrades one client and answers its commands.
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	remoteAddr := conn.RemoteAddr().String()

	s.wg.Add(1)
	defer s.wg.Done()

	// Track active connection
	s.mu.Lock()
	s.activeConns[remoteAddr] = conn
	s.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		_ = conn.Close()
		s.mu.Lock()
		delete(s.activeConns, remoteAddr)
		s.mu.Unlock()
		logging.LogConnection(remoteAddr, "connection_closed")
	}()

	logging.LogConnection(remoteAddr, "connection_accepted")

	out := &connWriter{conn: conn}
	if s.config.StatsEvery > 0 {
		go s.push(out, done)
	}

	messageNum := 0
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Connection closed by client", zap.String("remote_addr", remoteAddr))
			} else {
				logging.Debug("Connection closed or error reading frame",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
			}
			return
		}
		messageNum++
		logging.LogFrame("received", protocol.Format(mt).String(), data)

		if mt != websocket.TextMessage {
			logging.Debug("Emulator ignoring binary upload",
				zap.String("remote_addr", remoteAddr),
				zap.Int("message_num", messageNum),
				zap.Int("payload_length", len(data)),
			)
			continue
		}

		msg, err := protocol.ParseText(data)
		if err != nil {
			logging.Warn("Failed to parse command", zap.String("remote_addr", remoteAddr), zap.Error(err))
			continue
		}
		replies, err := s.ctrl.Handle(msg)
		if err != nil {
			logging.Warn("Failed to handle command", zap.String("remote_addr", remoteAddr), zap.Error(err))
			continue
		}
		for _, frame := range replies {
			if err := out.write(frame); err != nil {
				logging.Debug("Write failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
				return
			}
		}
	}
}

// push sends telemetry, and preview frames when requested, until done.
func (s *Server) push(out *connWriter, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.StatsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		stats, err := s.ctrl.Stats(time.Since(s.started))
		if err != nil {
			logging.Error("Failed to encode stats", zap.Error(err))
			return
		}
		if err := out.write(stats); err != nil {
			return
		}
		if s.ctrl.SendingUpdates() {
			if err := out.write(s.ctrl.PreviewFrame()); err != nil {
				return
			}
		}
	}
}

// Shutdown stops accepting connections and closes the active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down emulator...")

	err := s.http.Shutdown(ctx)

	// Hijacked websocket connections are not closed by http.Server.
	s.mu.Lock()
	for addr, conn := range s.activeConns {
		logging.Debug("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}
	return err
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
