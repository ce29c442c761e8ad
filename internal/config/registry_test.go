package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/client"
	"github.com/hkolbeck/pixelblaze-go/internal/store"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "pixelblaze") {
		t.Errorf("GetConfigDir() = %v, should contain 'pixelblaze'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin", "linux":
		if os.Getenv("XDG_CONFIG_HOME") == "" && !strings.Contains(configDir, ".config") {
			t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestConfigBase(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}
	home := func() (string, error) { return "/home/pb", nil }
	noHome := func() (string, error) { return "", errors.New("no home") }

	tests := []struct {
		name    string
		goos    string
		vars    map[string]string
		home    func() (string, error)
		want    string
		wantErr bool
	}{
		{name: "linux xdg", goos: "linux", vars: map[string]string{"XDG_CONFIG_HOME": "/xdg"}, home: home, want: "/xdg"},
		{name: "linux home", goos: "linux", home: home, want: filepath.Join("/home/pb", ".config")},
		{name: "darwin ignores xdg", goos: "darwin", vars: map[string]string{"XDG_CONFIG_HOME": "/xdg"}, home: home, want: filepath.Join("/home/pb", ".config")},
		{name: "windows localappdata", goos: "windows", vars: map[string]string{"LOCALAPPDATA": `C:\L`}, home: home, want: `C:\L`},
		{name: "windows profile", goos: "windows", vars: map[string]string{"USERPROFILE": "/users/pb"}, home: home, want: filepath.Join("/users/pb", "AppData", "Local")},
		{name: "windows unset", goos: "windows", home: home, wantErr: true},
		{name: "no home", goos: "linux", home: noHome, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := configBase(tt.goos, env(tt.vars), tt.home)
			if (err != nil) != tt.wantErr {
				t.Fatalf("configBase() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("configBase() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(PathEnvVar, "")
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}

	t.Setenv(PathEnvVar, "/tmp/elsewhere.yaml")
	configPath, err = GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if configPath != "/tmp/elsewhere.yaml" {
		t.Errorf("GetConfigPath() = %v, want env override", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}
	if reg.Devices == nil {
		t.Error("NewRegistry().Devices should not be nil")
	}
	if reg.Store == nil || reg.Store.Kind != StoreMemory {
		t.Errorf("NewRegistry().Store = %+v, want mem store", reg.Store)
	}
	if reg.Preferences.DiscoverTimeout != 5 {
		t.Errorf("NewRegistry().Preferences.DiscoverTimeout = %v, want 5", reg.Preferences.DiscoverTimeout)
	}
}

func TestRegistryEnsureDevice(t *testing.T) {
	reg := NewRegistry()

	device1 := reg.EnsureDevice("desk")
	if device1 == nil {
		t.Fatal("EnsureDevice() returned nil")
	}

	device2 := reg.EnsureDevice("desk")
	if device1 != device2 {
		t.Error("EnsureDevice() should return same instance for same name")
	}

	device3 := reg.EnsureDevice("porch")
	if device1 == device3 {
		t.Error("EnsureDevice() should create new instance for different name")
	}
}

func TestRegistryUpdateDeviceLastSeen(t *testing.T) {
	reg := NewRegistry()

	before := time.Now()
	reg.UpdateDeviceLastSeen("desk", "192.168.1.100", 81, "3.40")
	after := time.Now()

	device := reg.GetDevice("desk")
	if device == nil {
		t.Fatal("Device should exist after UpdateDeviceLastSeen()")
	}
	if device.Host != "192.168.1.100" || device.Port != 81 || device.Version != "3.40" {
		t.Errorf("device = %+v", device)
	}
	if device.LastSeen.Before(before) || device.LastSeen.After(after) {
		t.Errorf("LastSeen = %v, should be between %v and %v", device.LastSeen, before, after)
	}

	reg.UpdateDeviceLastSeen("desk", "192.168.1.101", 81, "")
	if device.Version != "3.40" {
		t.Errorf("empty version should keep the previous one, got %q", device.Version)
	}
}

func TestRegistryResolveHost(t *testing.T) {
	reg := NewRegistry()
	reg.UpdateDeviceLastSeen("desk", "10.0.0.5", 0, "")

	tests := []struct {
		name     string
		target   string
		fallback string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "known device", target: "desk", wantHost: "10.0.0.5"},
		{name: "raw address", target: "10.0.0.9", wantHost: "10.0.0.9"},
		{name: "default device", fallback: "desk", wantHost: "10.0.0.5"},
		{name: "address with port", target: "127.0.0.1:8181", wantHost: "127.0.0.1", wantPort: 8181},
		{name: "ipv6 with port", target: "[fe80::1]:81", wantHost: "fe80::1", wantPort: 81},
		{name: "bad port", target: "10.0.0.9:http", wantErr: true},
		{name: "nothing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg.Preferences.DefaultDevice = tt.fallback
			host, port, err := reg.ResolveHost(tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveHost() error = %v, wantErr %v", err, tt.wantErr)
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Errorf("ResolveHost() = %v, %v, want %v, %v", host, port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestRegistryClientConfig(t *testing.T) {
	reg := NewRegistry()
	if got := reg.ClientConfig(); got != client.DefaultConfig() {
		t.Errorf("empty settings should give defaults, got %+v", got)
	}

	reg.Client = &ClientSettings{
		ReplyQueueSize:  16,
		MaxResponseWait: 2 * time.Second,
		SendPingEvery:   -1,
	}
	cfg := reg.ClientConfig()
	if cfg.ReplyQueueSize != 16 {
		t.Errorf("ReplyQueueSize = %d, want 16", cfg.ReplyQueueSize)
	}
	if cfg.MaxResponseWait != 2*time.Second {
		t.Errorf("MaxResponseWait = %v, want 2s", cfg.MaxResponseWait)
	}
	if cfg.SendPingEvery != -1 {
		t.Errorf("SendPingEvery = %v, want disabled", cfg.SendPingEvery)
	}
	if cfg.ReconnectAttempts != client.DefaultReconnectAttempts {
		t.Errorf("ReconnectAttempts = %d, want default", cfg.ReconnectAttempts)
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.UpdateDeviceLastSeen("desk", "10.0.0.5", 81, "3.40")
	reg.Preferences.DefaultDevice = "desk"
	reg.Client.MaxResponseWait = 3 * time.Second
	reg.Store = &StoreSettings{Kind: StoreFile, Dir: "/var/tmp/pb", MaxAge: time.Hour}

	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if !strings.Contains(string(data), "max_response_wait: 3s") {
		t.Errorf("durations should be written in Go syntax:\n%s", data)
	}

	loaded, err := LoadRegistryFrom(path)
	if err != nil {
		t.Fatalf("LoadRegistryFrom() error = %v", err)
	}

	device := loaded.GetDevice("desk")
	if device == nil || device.Host != "10.0.0.5" {
		t.Fatalf("loaded device = %+v", device)
	}
	if loaded.Client.MaxResponseWait != 3*time.Second {
		t.Errorf("MaxResponseWait = %v, want 3s", loaded.Client.MaxResponseWait)
	}
	if loaded.Store.Kind != StoreFile || loaded.Store.MaxAge != time.Hour {
		t.Errorf("Store = %+v", loaded.Store)
	}
	if loaded.Preferences.DefaultDevice != "desk" {
		t.Errorf("DefaultDevice = %q", loaded.Preferences.DefaultDevice)
	}
}

func TestLoadRegistryFrom(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "minimal", content: "version: 1\n"},
		{name: "bad version", content: "version: 2\n", wantErr: true},
		{name: "bad yaml", content: "version: [\n", wantErr: true},
		{name: "bad duration", content: "version: 1\nclient:\n  max_response_wait: soon\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			reg, err := LoadRegistryFrom(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadRegistryFrom() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (reg.Client == nil || reg.Store == nil || reg.Devices == nil || reg.Preferences == nil) {
				t.Errorf("missing sections should be defaulted: %+v", reg)
			}
		})
	}

	reg, err := LoadRegistryFrom(filepath.Join(dir, "missing.yaml"))
	if err != nil || reg.Version != 1 {
		t.Errorf("missing file should give defaults, got %+v, %v", reg, err)
	}
}

func TestStoreSettingsOpenStore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		settings *StoreSettings
		wantErr  bool
	}{
		{name: "nil", settings: nil},
		{name: "mem", settings: &StoreSettings{Kind: StoreMemory, Buffers: 2, BufferBytes: 64}},
		{name: "file", settings: &StoreSettings{Kind: StoreFile, Dir: t.TempDir()}},
		{name: "file without dir", settings: &StoreSettings{Kind: StoreFile}, wantErr: true},
		{name: "cache", settings: &StoreSettings{Kind: StoreCache, BufferBytes: 1024}},
		{name: "unknown", settings: &StoreSettings{Kind: "s3"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.settings.OpenStore(ctx, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if c, ok := s.(*store.CacheStore); ok {
				defer c.Close()
			}

			w, err := s.OpenWrite("k", false)
			if err != nil {
				t.Fatalf("OpenWrite() error = %v", err)
			}
			if _, err := w.Write([]byte("hi")); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			s.Delete("k")
		})
	}
}

func TestStoreSettingsFileReclaimUsesGarbage(t *testing.T) {
	dir := t.TempDir()
	settings := &StoreSettings{Kind: StoreFile, Dir: dir}
	s, err := settings.OpenStore(context.Background(), func(key string) bool { return key == "old" })
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"old", "live"} {
		w, err := s.OpenWrite(key, false)
		if err != nil {
			t.Fatal(err)
		}
		_ = w.Close()
	}

	s.Reclaim()

	if _, err := os.Stat(filepath.Join(dir, "old")); !os.IsNotExist(err) {
		t.Errorf("garbage file should be reclaimed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "live")); err != nil {
		t.Errorf("live file should survive: %v", err)
	}
}

func BenchmarkEnsureDevice(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureDevice("desk")
	}
}
