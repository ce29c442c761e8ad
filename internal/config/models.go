package config

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/client"
	"github.com/hkolbeck/pixelblaze-go/internal/store"
)

// Registry represents the entire user configuration file.
// It holds engine tunables, buffer store selection and known controllers.
type Registry struct {
	Version     int                `yaml:"version"`
	Client      *ClientSettings    `yaml:"client,omitempty"`
	Store       *StoreSettings     `yaml:"store,omitempty"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by controller name
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// ClientSettings mirrors client.Config. Zero values fall back to the
// client defaults.
type ClientSettings struct {
	ReplyQueueSize    int           `yaml:"reply_queue_size,omitempty"`
	MaxResponseWait   time.Duration `yaml:"max_response_wait,omitempty"`
	MaxInboundCheck   time.Duration `yaml:"max_inbound_check,omitempty"`
	BinaryBufferBytes int           `yaml:"binary_buffer_bytes,omitempty"`
	SyncPollWait      time.Duration `yaml:"sync_poll_wait,omitempty"`
	ReconnectAttempts int           `yaml:"reconnect_attempts,omitempty"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay,omitempty"`
	SendPingEvery     time.Duration `yaml:"send_ping_every,omitempty"` // Negative disables
}

// Store kinds accepted in StoreSettings.Kind.
const (
	StoreMemory = "mem"
	StoreFile   = "file"
	StoreCache  = "cache"
)

// StoreSettings selects where reassembled replies are buffered.
type StoreSettings struct {
	Kind        string        `yaml:"kind"`                   // mem, file or cache
	Buffers     int           `yaml:"buffers,omitempty"`      // mem: slot count
	BufferBytes int           `yaml:"buffer_bytes,omitempty"` // mem: slot size; cache: max entry size
	Dir         string        `yaml:"dir,omitempty"`          // file: buffer directory
	MaxAge      time.Duration `yaml:"max_age,omitempty"`      // file: reclaim files older than this
	CacheLife   time.Duration `yaml:"cache_life,omitempty"`   // cache: entry lifetime
}

// Device represents a known controller.
type Device struct {
	Host     string    `yaml:"host"`                // Hostname or IP address
	Port     int       `yaml:"port,omitempty"`      // Websocket port, 0 means the default
	Version  string    `yaml:"version,omitempty"`   // Last reported firmware version
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last discovery/connection time
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	DefaultDevice   string `yaml:"default_device,omitempty"` // Device used when none is named
	DiscoverTimeout int    `yaml:"discover_timeout"`         // mDNS discovery timeout in seconds
	LogFile         string `yaml:"log_file,omitempty"`       // Rotated log file, empty logs to stderr
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Client:  &ClientSettings{},
		Store:   defaultStoreSettings(),
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			DiscoverTimeout: 5,
		},
	}
}

func defaultStoreSettings() *StoreSettings {
	return &StoreSettings{
		Kind:        StoreMemory,
		Buffers:     store.DefaultMemBuffers,
		BufferBytes: store.DefaultMemBufferBytes,
	}
}

// GetDevice retrieves a controller by name.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(name string) *Device {
	return r.Devices[name]
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new entry with default values.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(name string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[name]; exists {
		return device
	}

	device := &Device{}
	r.Devices[name] = device
	return device
}

// UpdateDeviceLastSeen records where a controller was last reached.
func (r *Registry) UpdateDeviceLastSeen(name, host string, port int, version string) {
	device := r.EnsureDevice(name)
	device.LastSeen = time.Now()
	device.Host = host
	device.Port = port
	if version != "" {
		device.Version = version
	}
}

// ResolveHost turns a device name or address into host and port. An empty
// target selects the default device. Unknown names are treated as hosts,
// optionally with a :port suffix.
func (r *Registry) ResolveHost(target string) (string, int, error) {
	if target == "" && r.Preferences != nil {
		target = r.Preferences.DefaultDevice
	}
	if target == "" {
		return "", 0, fmt.Errorf("no controller given and no default device configured")
	}
	if device := r.GetDevice(target); device != nil && device.Host != "" {
		return device.Host, device.Port, nil
	}
	if host, portStr, err := net.SplitHostPort(target); err == nil {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return "", 0, fmt.Errorf("invalid port in %q", target)
		}
		return host, port, nil
	}
	return target, 0, nil
}

// ClientConfig converts the tunables into a client.Config.
func (r *Registry) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	s := r.Client
	if s == nil {
		return cfg
	}

	if s.ReplyQueueSize > 0 {
		cfg.ReplyQueueSize = s.ReplyQueueSize
	}
	if s.MaxResponseWait > 0 {
		cfg.MaxResponseWait = s.MaxResponseWait
	}
	if s.MaxInboundCheck > 0 {
		cfg.MaxInboundCheck = s.MaxInboundCheck
	}
	if s.BinaryBufferBytes > 0 {
		cfg.BinaryBufferBytes = s.BinaryBufferBytes
	}
	if s.SyncPollWait > 0 {
		cfg.SyncPollWait = s.SyncPollWait
	}
	if s.ReconnectAttempts > 0 {
		cfg.ReconnectAttempts = s.ReconnectAttempts
	}
	if s.ReconnectDelay > 0 {
		cfg.ReconnectDelay = s.ReconnectDelay
	}
	if s.SendPingEvery != 0 {
		cfg.SendPingEvery = s.SendPingEvery
	}
	return cfg
}

// OpenStore builds the configured ChunkStore. isGarbage reports keys no
// request still needs, normally Client.IsGarbage; it is consulted lazily so
// the client may be created afterwards.
func (s *StoreSettings) OpenStore(ctx context.Context, isGarbage func(key string) bool) (store.ChunkStore, error) {
	if s == nil {
		s = defaultStoreSettings()
	}
	if isGarbage == nil {
		isGarbage = func(string) bool { return false }
	}

	switch strings.ToLower(s.Kind) {
	case "", StoreMemory:
		return store.NewMemStore(s.Buffers, s.BufferBytes, store.WithTrash(isGarbage)), nil

	case StoreFile:
		if s.Dir == "" {
			return nil, fmt.Errorf("store kind %q requires dir", s.Kind)
		}
		var stale func(fs.FileInfo) bool
		if s.MaxAge > 0 {
			stale = store.OlderThan(s.MaxAge)
		}
		fileStore, err := store.NewFileStore(s.Dir, func(info fs.FileInfo) bool {
			if stale != nil && stale(info) {
				return true
			}
			return isGarbage(info.Name())
		})
		if err != nil {
			return nil, err
		}
		return fileStore, nil

	case StoreCache:
		life := s.CacheLife
		if life <= 0 {
			life = time.Minute
		}
		cacheStore, err := store.NewCacheStore(ctx, life, s.BufferBytes)
		if err != nil {
			return nil, err
		}
		return cacheStore, nil

	default:
		return nil, fmt.Errorf("unknown store kind %q (want %s, %s or %s)", s.Kind, StoreMemory, StoreFile, StoreCache)
	}
}
