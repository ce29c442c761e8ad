package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "pixelblaze"
	configFile = "config.yaml"

	// PathEnvVar overrides the configuration file location.
	PathEnvVar = "PIXELBLAZE_CONFIG"

	// registryVersion is the only file layout this package reads.
	registryVersion = 1
)

var (
	loaded     *Registry
	loadedErr  error
	loadedOnce sync.Once

	// saveMu serializes SaveTo across goroutines.
	saveMu sync.Mutex
)

// configBase resolves the per-user directory for goos. Windows uses
// LOCALAPPDATA (or USERPROFILE\AppData\Local); everything else uses
// XDG_CONFIG_HOME or ~/.config, macOS included.
func configBase(goos string, getenv func(string) string, home func() (string, error)) (string, error) {
	if goos == "windows" {
		if dir := getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		if profile := getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, "AppData", "Local"), nil
		}
		return "", errors.New("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
	}

	if goos != "darwin" {
		if dir := getenv("XDG_CONFIG_HOME"); dir != "" {
			return dir, nil
		}
	}
	dir, err := home()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(dir, ".config"), nil
}

// GetConfigDir returns the directory holding pbctl's configuration.
func GetConfigDir() (string, error) {
	base, err := configBase(runtime.GOOS, os.Getenv, os.UserHomeDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

// GetConfigPath returns the configuration file path. PIXELBLAZE_CONFIG,
// when set, wins over the platform location.
func GetConfigPath() (string, error) {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// LoadRegistry loads the registry from the default path once per process
// and returns the same instance on later calls.
func LoadRegistry() (*Registry, error) {
	loadedOnce.Do(func() {
		path, err := GetConfigPath()
		if err != nil {
			loadedErr = fmt.Errorf("failed to get config path: %w", err)
			return
		}
		loaded, loadedErr = LoadRegistryFrom(path)
	})
	return loaded, loadedErr
}

// LoadRegistryFrom reads a registry from path. A missing file yields the
// defaults.
func LoadRegistryFrom(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseRegistry(data)
}

func parseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if reg.Version != registryVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", reg.Version, registryVersion)
	}

	// Sections left out of the file take their defaults.
	defaults := NewRegistry()
	if reg.Client == nil {
		reg.Client = defaults.Client
	}
	if reg.Store == nil {
		reg.Store = defaults.Store
	}
	if reg.Devices == nil {
		reg.Devices = defaults.Devices
	}
	if reg.Preferences == nil {
		reg.Preferences = defaults.Preferences
	}
	return &reg, nil
}

// Save writes the registry to GetConfigPath.
func (r *Registry) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return r.SaveTo(path)
}

const fileHeader = `# Pixelblaze client configuration
# Durations use Go syntax (e.g. 5s, 300ms). Omitted client settings use
# the built-in defaults.
#
# Location: %s

`

// SaveTo writes the registry to path through a temporary file and a
// rename, so readers never see a partial file.
func (r *Registry) SaveTo(path string) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	body, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data := append([]byte(fmt.Sprintf(fileHeader, path)), body...)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}
