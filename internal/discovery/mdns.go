package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/hkolbeck/pixelblaze-go/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type controllers advertise their web
	// UI under.
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultHTTPPort is the web UI port.
	DefaultHTTPPort = 80
)

// hostPattern matches factory controller hostnames (e.g.
// "Pixelblaze_1A2B3C.local") and captures the chip id.
var hostPattern = regexp.MustCompile(`(?i)^pixelblaze[_-]([0-9a-f]+)\.local\.?$`)

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	// Names lists extra instance names to accept, for controllers the
	// user has renamed. Matching is case-insensitive.
	Names []string
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForDevices discovers controllers on the local network until the
// timeout or ctx ends.
func (s *Scanner) ScanForDevices(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var (
		mu      sync.Mutex
		devices = make([]*Device, 0)
		seen    = make(map[string]bool)
		wg      sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				device := s.parseServiceEntry(entry)
				if device == nil {
					continue
				}
				mu.Lock()
				if !seen[device.IP] {
					seen[device.IP] = true
					devices = append(devices, device)
					logging.Debug("Discovered controller",
						zap.String("name", device.Name),
						zap.String("ip", device.IP),
					)
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

// FindDevice waits for a controller with the given name or chip id.
func (s *Scanner) FindDevice(ctx context.Context, nameOrID string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	deviceChan := make(chan *Device, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				device := s.parseServiceEntry(entry)
				if device != nil && device.Matches(nameOrID) {
					deviceChan <- device
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case device := <-deviceChan:
		return device, nil
	case <-ctx.Done():
		select {
		case device := <-deviceChan:
			return device, nil
		default:
		}
		return nil, fmt.Errorf("controller %s not found within timeout", nameOrID)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Device
// Returns nil if the entry is not a controller
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	hostname := entry.HostName
	if hostname == "" {
		return nil
	}

	var chipID string
	if matches := hostPattern.FindStringSubmatch(hostname); len(matches) == 2 {
		chipID = strings.ToUpper(matches[1])
	} else if !s.acceptsName(entry.Instance) {
		return nil
	}

	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultHTTPPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	name := entry.Instance
	if name == "" {
		name = strings.TrimSuffix(strings.TrimSuffix(hostname, "."), ".local")
	}

	return &Device{
		Name:         name,
		ChipID:       chipID,
		Hostname:     hostname,
		IP:           ip,
		HTTPPort:     port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

func (s *Scanner) acceptsName(instance string) bool {
	if instance == "" {
		return false
	}
	if strings.Contains(strings.ToLower(instance), "pixelblaze") {
		return true
	}
	for _, name := range s.Names {
		if strings.EqualFold(name, instance) {
			return true
		}
	}
	return false
}

// QuickScan performs a fast scan with a 2-second timeout
func QuickScan(ctx context.Context) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = 2 * time.Second
	return scanner.ScanForDevices(ctx)
}
