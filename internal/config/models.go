package config

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/muurk/ssdp/internal/device"
	"github.com/muurk/ssdp/internal/discovery"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// DefaultListen is the reporting server address used by "serve".
const DefaultListen = "127.0.0.1:8900"

// Config represents the entire configuration file.
type Config struct {
	Version   int             `yaml:"version"`
	LogLevel  string          `yaml:"log_level,omitempty"` // debug, info, warn, error; empty is silent
	Network   NetworkConfig   `yaml:"network"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Server    ServerConfig    `yaml:"server"`
	Device    *DeviceConfig   `yaml:"device,omitempty"` // Only needed for "announce"
}

// NetworkConfig controls the multicast socket.
type NetworkConfig struct {
	Interface   string        `yaml:"interface,omitempty"` // Empty joins every multicast interface
	TTL         int           `yaml:"ttl"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Workers     int           `yaml:"workers"` // Scheduler worker pool size
}

// DiscoveryConfig controls control-point behaviour.
type DiscoveryConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"` // Periodic ssdp:all search; 0 disables
	ExpirePeriod time.Duration `yaml:"expire_period"` // Cache sweep period
	SearchPeriod time.Duration `yaml:"search_period"` // Cache re-search period
	MX           int           `yaml:"mx"`
}

// ServerConfig controls the reporting HTTP server.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DeviceConfig describes the root device announced in device mode.
type DeviceConfig struct {
	UUID        string            `yaml:"uuid,omitempty"` // Generated and saved on first use when empty
	DeviceType  string            `yaml:"device_type"`
	Location    string            `yaml:"location"` // Description URL sent in LOCATION
	MaxAge      time.Duration     `yaml:"max_age"`
	Server      string            `yaml:"server,omitempty"` // SERVER header override
	BootID      int               `yaml:"boot_id,omitempty"`
	ConfigID    int               `yaml:"config_id,omitempty"`
	DNSSD       bool              `yaml:"dnssd"`                  // Mirror the root device over DNS-SD
	SearchRate  float64           `yaml:"search_rate,omitempty"`  // Answered searches per second
	SearchBurst int               `yaml:"search_burst,omitempty"` // Searches answered before limiting
	Services    []string          `yaml:"services,omitempty"`
	Devices     []*EmbeddedDevice `yaml:"devices,omitempty"`
}

// EmbeddedDevice is a non-root device in the announced tree.
type EmbeddedDevice struct {
	UUID       string            `yaml:"uuid,omitempty"`
	DeviceType string            `yaml:"device_type"`
	Services   []string          `yaml:"services,omitempty"`
	Devices    []*EmbeddedDevice `yaml:"devices,omitempty"`
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Network: NetworkConfig{
			TTL:         discovery.DefaultTTL,
			ReadTimeout: discovery.DefaultReadTimeout,
			Workers:     discovery.DefaultWorkers,
		},
		Discovery: DiscoveryConfig{
			PingInterval: 0,
			ExpirePeriod: discovery.DefaultExpirePeriod,
			SearchPeriod: discovery.DefaultSearchPeriod,
			MX:           discovery.DefaultMX,
		},
		Server: ServerConfig{
			Listen: DefaultListen,
		},
	}
}

// applyDefaults fills fields a partial file left at zero.
func (c *Config) applyDefaults() {
	d := NewConfig()

	if c.Network.TTL <= 0 {
		c.Network.TTL = d.Network.TTL
	}
	if c.Network.ReadTimeout <= 0 {
		c.Network.ReadTimeout = d.Network.ReadTimeout
	}
	if c.Network.Workers <= 0 {
		c.Network.Workers = d.Network.Workers
	}
	if c.Discovery.ExpirePeriod <= 0 {
		c.Discovery.ExpirePeriod = d.Discovery.ExpirePeriod
	}
	if c.Discovery.SearchPeriod <= 0 {
		c.Discovery.SearchPeriod = d.Discovery.SearchPeriod
	}
	if c.Discovery.MX <= 0 {
		c.Discovery.MX = d.Discovery.MX
	}
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}
	if c.Device != nil && c.Device.MaxAge <= 0 {
		c.Device.MaxAge = discovery.DefaultMaxAge
	}
}

// ServiceConfig converts the network section for discovery.New.
func (c *Config) ServiceConfig(product string) discovery.Config {
	return discovery.Config{
		Interface:   c.Network.Interface,
		TTL:         c.Network.TTL,
		ReadTimeout: c.Network.ReadTimeout,
		Workers:     c.Network.Workers,
		Product:     product,
	}
}

// CacheConfig converts the discovery section for discovery.NewCache.
func (c *Config) CacheConfig() discovery.CacheConfig {
	return discovery.CacheConfig{
		ExpirePeriod: c.Discovery.ExpirePeriod,
		SearchPeriod: c.Discovery.SearchPeriod,
		MX:           c.Discovery.MX,
	}
}

// AnnouncerConfig converts the device section for discovery.NewAnnouncer.
// The SERVER header defaults to product.
func (d *DeviceConfig) AnnouncerConfig(product string) discovery.AnnouncerConfig {
	server := d.Server
	if server == "" {
		server = product
	}
	return discovery.AnnouncerConfig{
		MaxAge:      d.MaxAge,
		Product:     server,
		BootID:      d.BootID,
		ConfigID:    d.ConfigID,
		SearchRate:  rate.Limit(d.SearchRate),
		SearchBurst: d.SearchBurst,
	}
}

// Build turns the device section into a validated device tree. Missing
// UUIDs are generated and written back so a later Save keeps them stable.
func (d *DeviceConfig) Build() (*device.Device, error) {
	if d.UUID == "" {
		d.UUID = device.NewUDN()
	}

	root := &device.Device{
		Type:           d.DeviceType,
		UUID:           d.UUID,
		Root:           true,
		DescriptionURL: d.Location,
	}
	for _, s := range d.Services {
		root.AddService(s)
	}
	for _, child := range d.Devices {
		root.AddDevice(child.build())
	}

	if err := device.Validate(root); err != nil {
		return nil, fmt.Errorf("invalid device configuration: %w", err)
	}
	return root, nil
}

func (e *EmbeddedDevice) build() *device.Device {
	if e.UUID == "" {
		e.UUID = device.NewUDN()
	}

	d := &device.Device{Type: e.DeviceType, UUID: e.UUID}
	for _, s := range e.Services {
		d.AddService(s)
	}
	for _, child := range e.Devices {
		d.AddDevice(child.build())
	}
	return d
}
