package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/projecta-dev/projecta/internal/logging"
)

const (
	// ServiceType is the DNS-SD service type Project-A controllers advertise
	ServiceType = "_projecta._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultMDNSTimeout is the browse window of an mDNS scan
	DefaultMDNSTimeout = 3 * time.Second

	// TXTName is the TXT record key carrying the device name
	TXTName = "name"
)

// MDNSScanner finds devices through their DNS-SD advertisement. It is a
// fallback for networks that drop limited broadcast; UDP probing stays the
// primary method.
type MDNSScanner struct {
	// Timeout is the maximum time to browse
	Timeout time.Duration
}

// NewMDNSScanner creates an mDNS scanner with default settings
func NewMDNSScanner() *MDNSScanner {
	return &MDNSScanner{
		Timeout: DefaultMDNSTimeout,
	}
}

// Scan browses for ServiceType until the timeout or ctx expires and returns
// one device per IP address, in the order they were resolved.
func (s *MDNSScanner) Scan(ctx context.Context) ([]Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		devices []Device
		seen    = make(map[string]struct{})
		done    = make(chan struct{})
	)

	go func() {
		defer close(done)
		for entry := range entries {
			device, ok := deviceFromEntry(entry)
			if !ok {
				continue
			}
			mu.Lock()
			if _, dup := seen[device.IP]; !dup {
				seen[device.IP] = struct{}{}
				devices = append(devices, device)
				logging.Info("Discovered device via mDNS",
					zap.String("name", device.Name),
					zap.String("ip", device.IP),
					zap.Uint16("port", device.Port),
				)
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	// The resolver closes entries once the browse context ends.
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]Device, len(devices))
	copy(out, devices)
	return out, nil
}

// deviceFromEntry converts a zeroconf service entry to a Device
func deviceFromEntry(entry *zeroconf.ServiceEntry) (Device, bool) {
	if entry == nil {
		return Device{}, false
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
		return Device{}, false
	}

	if entry.Port <= 0 || entry.Port > 0xFFFF {
		return Device{}, false
	}

	name := entry.Instance
	for _, txt := range entry.Text {
		key, value, found := strings.Cut(txt, "=")
		if found && key == TXTName {
			name = value
		}
	}

	return Device{
		Name:         name,
		IP:           ip,
		Port:         uint16(entry.Port),
		DiscoveredAt: time.Now(),
		Source:       SourceMDNS,
	}, true
}

// Advertisement is a running DNS-SD registration for a device
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers instance under ServiceType on port with the device
// name in the TXT record. Call Shutdown to withdraw it.
func Advertise(instance string, port uint16, name string) (*Advertisement, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, int(port),
		[]string{TXTName + "=" + name}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("mDNS advertisement registered",
		zap.String("instance", instance),
		zap.Uint16("port", port),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}
