// Package discovery provides mDNS-based discovery of Pixelblaze controllers.
//
// Controllers advertise their web UI as an "_http._tcp" service. Factory
// units use hostnames of the form "Pixelblaze_<chipid>.local"; renamed units
// are recognised by an instance name containing "pixelblaze" or listed in
// Scanner.Names. The websocket API a client connects to is on port 81 of the
// same address.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	devices, err := scanner.ScanForDevices(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, device := range devices {
//	    fmt.Printf("Found: %s at %s\n", device.Name, device.WebsocketURL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Controllers must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
