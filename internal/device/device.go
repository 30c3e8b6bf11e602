package device

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Node is the read-only view of a device the discovery engine needs.
// Implementations must not change while the engine holds them.
type Node interface {
	DeviceType() string
	UDN() string
	IsRoot() bool
	Services() []ServiceNode
	Devices() []Node
	// Location is the description URL advertised in LOCATION.
	Location() string
}

// ServiceNode is the read-only view of an embedded service.
type ServiceNode interface {
	ServiceType() string
}

// Service is an embedded UPnP service
type Service struct {
	// Type is the service type URN (e.g., "urn:schemas-upnp-org:service:ContentDirectory:1")
	Type string
}

// ServiceType implements ServiceNode
func (s *Service) ServiceType() string { return s.Type }

// Device is a concrete device tree, usually built from configuration.
type Device struct {
	// Type is the device type URN (e.g., "urn:schemas-upnp-org:device:MediaServer:1")
	Type string

	// UUID identifies the device; UDN() adds the "uuid:" scheme when missing
	UUID string

	// Root marks the top of the tree, the only node announcing upnp:rootdevice
	Root bool

	// DescriptionURL is the root device description location
	DescriptionURL string

	// Embedded services and devices, in declaration order
	EmbeddedServices []*Service
	EmbeddedDevices  []*Device

	usnOnce sync.Once
	usns    *USNMap
}

// NewRoot creates a root device with a freshly generated UUID.
func NewRoot(deviceType, location string) *Device {
	return &Device{
		Type:           deviceType,
		UUID:           NewUDN(),
		Root:           true,
		DescriptionURL: location,
	}
}

// AddService appends an embedded service and returns the device for chaining.
func (d *Device) AddService(serviceType string) *Device {
	d.EmbeddedServices = append(d.EmbeddedServices, &Service{Type: serviceType})
	return d
}

// AddDevice appends an embedded (non-root) device.
func (d *Device) AddDevice(child *Device) *Device {
	child.Root = false
	d.EmbeddedDevices = append(d.EmbeddedDevices, child)
	return d
}

func (d *Device) DeviceType() string { return d.Type }

func (d *Device) UDN() string { return NormalizeUDN(d.UUID) }

func (d *Device) IsRoot() bool { return d.Root }

func (d *Device) Location() string { return d.DescriptionURL }

func (d *Device) Services() []ServiceNode {
	out := make([]ServiceNode, len(d.EmbeddedServices))
	for i, s := range d.EmbeddedServices {
		out[i] = s
	}
	return out
}

func (d *Device) Devices() []Node {
	out := make([]Node, len(d.EmbeddedDevices))
	for i, c := range d.EmbeddedDevices {
		out[i] = c
	}
	return out
}

// USNMap returns the device's USN/NT permutations, computed on first call.
// The tree must not be modified afterwards.
func (d *Device) USNMap() *USNMap {
	d.usnOnce.Do(func() {
		d.usns = BuildUSNMap(d)
	})
	return d.usns
}

// String returns a human-readable representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("Device %s (%s) services=%d devices=%d", d.UDN(), d.Type, len(d.EmbeddedServices), len(d.EmbeddedDevices))
}

// Walk visits n and every embedded device depth-first in declaration order.
func Walk(n Node, fn func(Node)) {
	fn(n)
	for _, child := range n.Devices() {
		Walk(child, fn)
	}
}

// Validate checks that every node in the tree has a UDN and URN types, and
// that UDNs are unique.
func Validate(root Node) error {
	var errs []error
	seen := make(map[string]bool)

	Walk(root, func(n Node) {
		udn := n.UDN()
		if udn == "" || udn == UUIDPrefix {
			errs = append(errs, fmt.Errorf("device %q has no UUID", n.DeviceType()))
		} else if seen[strings.ToLower(udn)] {
			errs = append(errs, fmt.Errorf("duplicate UDN %s", udn))
		}
		seen[strings.ToLower(udn)] = true

		if !isURN(n.DeviceType()) {
			errs = append(errs, fmt.Errorf("device %s: type %q is not a urn", udn, n.DeviceType()))
		}
		for _, s := range n.Services() {
			if !isURN(s.ServiceType()) {
				errs = append(errs, fmt.Errorf("device %s: service type %q is not a urn", udn, s.ServiceType()))
			}
		}
	})

	if root.IsRoot() {
		if _, err := url.ParseRequestURI(root.Location()); err != nil {
			errs = append(errs, fmt.Errorf("root device location %q: %w", root.Location(), err))
		}
	}

	return errors.Join(errs...)
}

// UUIDPrefix is the scheme prefix of a UDN.
const UUIDPrefix = "uuid:"

// NewUDN returns a random UDN ("uuid:" + RFC 4122 v4).
func NewUDN() string {
	return UUIDPrefix + uuid.NewString()
}

// NormalizeUDN adds the uuid: scheme to a bare UUID.
func NormalizeUDN(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if len(id) >= len(UUIDPrefix) && strings.EqualFold(id[:len(UUIDPrefix)], UUIDPrefix) {
		return UUIDPrefix + id[len(UUIDPrefix):]
	}
	return UUIDPrefix + id
}

func isURN(s string) bool {
	return len(s) > 4 && strings.EqualFold(s[:4], "urn:")
}
