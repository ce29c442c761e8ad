// Package config provides user configuration management for the Pixelblaze
// client.
//
// This package manages a YAML configuration file holding the client engine
// tunables, the buffer store used for binary replies, and the controllers the
// user has connected to before. Every section is optional; omitted values take
// the client defaults.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/pixelblaze/config.yaml or $HOME/.config/pixelblaze/config.yaml
//   - macOS: $HOME/.config/pixelblaze/config.yaml
//   - Windows: %LOCALAPPDATA%\pixelblaze\config.yaml
//
// PIXELBLAZE_CONFIG overrides the location.
//
// # Example File
//
//	version: 1
//	client:
//	  max_response_wait: 5s
//	  send_ping_every: 3s
//	store:
//	  kind: file
//	  dir: /var/tmp/pixelblaze
//	  max_age: 1h
//	devices:
//	  desk:
//	    host: 192.168.1.20
//	preferences:
//	  default_device: desk
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	host, port, err := registry.ResolveHost("desk")
//	cfg := registry.ClientConfig()
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
