package discovery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/ssdp/internal/device"
	"github.com/muurk/ssdp/internal/logging"
)

const (
	// MirrorServiceType is the DNS-SD service type UPnP roots are mirrored under
	MirrorServiceType = "_upnp._tcp"

	// MirrorDomain is the mDNS domain (typically "local.")
	MirrorDomain = "local."

	// DefaultBrowseTimeout is the default time spent collecting mirrors
	DefaultBrowseTimeout = 5 * time.Second
)

// TXT record keys published with each mirror
const (
	txtUDN      = "udn"
	txtType     = "type"
	txtLocation = "location"
)

// Mirror is a DNS-SD registration of a root device's description location.
type Mirror struct {
	server   *zeroconf.Server
	instance string
}

// Advertise publishes root over mDNS. The port comes from the description
// URL. ifaces may be nil to use every multicast interface.
func Advertise(root device.Node, instance string, ifaces []net.Interface) (*Mirror, error) {
	port, err := locationPort(root.Location())
	if err != nil {
		return nil, fmt.Errorf("invalid description location: %w", err)
	}
	if instance == "" {
		instance = strings.TrimPrefix(root.UDN(), device.UUIDPrefix)
	}

	server, err := zeroconf.Register(instance, MirrorServiceType, MirrorDomain, port, mirrorTXT(root), ifaces)
	if err != nil {
		return nil, fmt.Errorf("failed to register DNS-SD mirror: %w", err)
	}

	logging.Info("Published DNS-SD mirror",
		zap.String("instance", instance),
		zap.String("service", MirrorServiceType),
		zap.Int("port", port),
	)

	return &Mirror{server: server, instance: instance}, nil
}

// Instance returns the registered instance name.
func (m *Mirror) Instance() string { return m.instance }

// Shutdown withdraws the registration.
func (m *Mirror) Shutdown() {
	if m.server != nil {
		m.server.Shutdown()
	}
}

func mirrorTXT(root device.Node) []string {
	return []string{
		txtUDN + "=" + root.UDN(),
		txtType + "=" + root.DeviceType(),
		txtLocation + "=" + root.Location(),
	}
}

func locationPort(location string) (int, error) {
	u, err := url.ParseRequestURI(location)
	if err != nil {
		return 0, err
	}
	if p := u.Port(); p != "" {
		return strconv.Atoi(p)
	}
	if u.Scheme == "https" {
		return 443, nil
	}
	return 80, nil
}

// MirrorEntry is a root device found over DNS-SD.
type MirrorEntry struct {
	Instance string
	Hostname string
	IP       string
	Port     int
	UDN      string
	Type     string
	Location string

	// Metadata holds every TXT key, including the ones above
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable representation of the mirror
func (e *MirrorEntry) String() string {
	return fmt.Sprintf("%s (%s) at %s", e.UDN, e.Type, e.Location)
}

// Browser looks up DNS-SD mirrors
type Browser struct {
	// Timeout is the maximum time spent collecting results
	Timeout time.Duration
}

// NewBrowser creates a browser with default settings
func NewBrowser() *Browser {
	return &Browser{Timeout: DefaultBrowseTimeout}
}

// Browse collects mirrors until the timeout or ctx ends.
func (b *Browser) Browse(ctx context.Context) ([]*MirrorEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var (
		mu    sync.Mutex
		found []*MirrorEntry
	)
	entries := make(chan *zeroconf.ServiceEntry)

	go func() {
		for entry := range entries {
			if m := parseMirrorEntry(entry); m != nil {
				mu.Lock()
				found = append(found, m)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, MirrorServiceType, MirrorDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for DNS-SD mirrors: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	out := make([]*MirrorEntry, len(found))
	copy(out, found)
	return out, nil
}

// parseMirrorEntry converts a zeroconf entry. Entries without a udn TXT
// key are not mirrors and yield nil.
func parseMirrorEntry(entry *zeroconf.ServiceEntry) *MirrorEntry {
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	udn := metadata[txtUDN]
	if udn == "" {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}

	return &MirrorEntry{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		UDN:          device.NormalizeUDN(udn),
		Type:         metadata[txtType],
		Location:     metadata[txtLocation],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
