package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()
	scanner.Names = []string{"Porch Lights"}

	tests := []struct {
		name       string
		entry      *zeroconf.ServiceEntry
		wantNil    bool
		wantName   string
		wantChipID string
		wantIP     string
		wantPort   int
	}{
		{
			name: "factory hostname with IPv4",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Pixelblaze_1A2B3C"},
				HostName:      "Pixelblaze_1A2B3C.local.",
				Port:          80,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
			},
			wantName:   "Pixelblaze_1A2B3C",
			wantChipID: "1A2B3C",
			wantIP:     "192.168.4.16",
			wantPort:   80,
		},
		{
			name: "lowercase hostname without instance",
			entry: &zeroconf.ServiceEntry{
				HostName: "pixelblaze-00ff12.local",
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantName:   "pixelblaze-00ff12",
			wantChipID: "00FF12",
			wantIP:     "10.0.0.5",
			wantPort:   DefaultHTTPPort,
		},
		{
			name: "renamed controller accepted by configured name",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "porch lights"},
				HostName:      "esp32-abc.local.",
				Port:          8080,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.100")},
			},
			wantName: "porch lights",
			wantIP:   "192.168.1.100",
			wantPort: 8080,
		},
		{
			name: "renamed controller still mentioning pixelblaze",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Kitchen Pixelblaze"},
				HostName:      "kitchen.local.",
				AddrIPv4:      []net.IP{net.ParseIP("172.16.0.1")},
			},
			wantName: "Kitchen Pixelblaze",
			wantIP:   "172.16.0.1",
			wantPort: DefaultHTTPPort,
		},
		{
			name: "unrelated http service",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "Printer"},
				HostName:      "printer.local",
				Port:          80,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "empty hostname",
			entry: &zeroconf.ServiceEntry{
				HostName: "",
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "no IP address",
			entry: &zeroconf.ServiceEntry{
				HostName: "Pixelblaze_1A2B3C.local",
			},
			wantNil: true,
		},
		{
			name: "IPv6 only device",
			entry: &zeroconf.ServiceEntry{
				HostName: "Pixelblaze_222222.local",
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
			},
			wantName:   "Pixelblaze_222222",
			wantChipID: "222222",
			wantIP:     "fe80::1",
			wantPort:   DefaultHTTPPort,
		},
		{
			name: "both address families prefers IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "Pixelblaze_333333.local",
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6: []net.IP{net.ParseIP("fe80::2")},
			},
			wantName:   "Pixelblaze_333333",
			wantChipID: "333333",
			wantIP:     "192.168.1.50",
			wantPort:   DefaultHTTPPort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := scanner.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}

			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want non-nil device")
			}
			if device.Name != tt.wantName {
				t.Errorf("device.Name = %v, want %v", device.Name, tt.wantName)
			}
			if device.ChipID != tt.wantChipID {
				t.Errorf("device.ChipID = %v, want %v", device.ChipID, tt.wantChipID)
			}
			if device.IP != tt.wantIP {
				t.Errorf("device.IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.HTTPPort != tt.wantPort {
				t.Errorf("device.HTTPPort = %v, want %v", device.HTTPPort, tt.wantPort)
			}
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("device.DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	scanner := NewScanner()

	entry := &zeroconf.ServiceEntry{
		HostName: "Pixelblaze_1A2B3C.local",
		AddrIPv4: []net.IP{net.ParseIP("192.168.4.16")},
		Text:     []string{"path=/", "ver=3.40", "flag"},
	}

	device := scanner.parseServiceEntry(entry)
	if device == nil {
		t.Fatal("parseServiceEntry() = nil, want device")
	}

	expectedMetadata := map[string]string{
		"path": "/",
		"ver":  "3.40",
		"flag": "",
	}

	if len(device.Metadata) != len(expectedMetadata) {
		t.Errorf("device.Metadata has %d entries, want %d", len(device.Metadata), len(expectedMetadata))
	}
	for key, expectedValue := range expectedMetadata {
		if actualValue, ok := device.Metadata[key]; !ok {
			t.Errorf("device.Metadata missing key %q", key)
		} else if actualValue != expectedValue {
			t.Errorf("device.Metadata[%q] = %q, want %q", key, actualValue, expectedValue)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()

	if scanner == nil {
		t.Fatal("NewScanner() = nil, want scanner")
	}
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestHostPattern(t *testing.T) {
	tests := []struct {
		hostname    string
		shouldMatch bool
		chipID      string
	}{
		{"Pixelblaze_1A2B3C.local", true, "1A2B3C"},
		{"Pixelblaze_1A2B3C.local.", true, "1A2B3C"},
		{"pixelblaze-abc123.local", true, "abc123"},
		{"PIXELBLAZE_0.local", true, "0"},
		{"Pixelblaze.local", false, ""},
		{"Pixelblaze_XYZ.local", false, ""},
		{"MyPixelblaze_123.local", false, ""},
		{"Pixelblaze_123", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			matches := hostPattern.FindStringSubmatch(tt.hostname)

			if tt.shouldMatch {
				if len(matches) < 2 {
					t.Errorf("hostPattern did not match %q", tt.hostname)
				} else if matches[1] != tt.chipID {
					t.Errorf("hostPattern matched %q with id %q, want %q", tt.hostname, matches[1], tt.chipID)
				}
			} else if matches != nil {
				t.Errorf("hostPattern matched %q, want no match", tt.hostname)
			}
		})
	}
}

// Note: live mDNS discovery needs multicast on the local network and is not
// exercised here.
