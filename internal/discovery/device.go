package discovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/transport"
)

// Device represents a controller found on the network
type Device struct {
	// Name is the advertised instance name (e.g., "Pixelblaze_1A2B3C" or a
	// user-chosen name)
	Name string

	// ChipID is the hex id from a factory hostname, empty for renamed units
	ChipID string

	// Hostname is the mDNS hostname (e.g., "Pixelblaze_1A2B3C.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// HTTPPort is the web UI port (typically 80). The websocket API always
	// listens on transport.DefaultPort.
	HTTPPort int

	// Metadata contains additional mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("Pixelblaze %s (%s) at %s", d.Name, d.Hostname, d.IP)
}

// WebsocketURL returns the address of the controller's websocket API.
func (d *Device) WebsocketURL() string {
	return transport.URLForHost(d.IP)
}

// BaseURL returns the HTTP base URL of the web UI.
func (d *Device) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.IP, d.HTTPPort)
}

// Matches reports whether nameOrID names this device, by instance name or
// chip id, ignoring case.
func (d *Device) Matches(nameOrID string) bool {
	if nameOrID == "" {
		return false
	}
	return strings.EqualFold(d.Name, nameOrID) || (d.ChipID != "" && strings.EqualFold(d.ChipID, nameOrID))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
