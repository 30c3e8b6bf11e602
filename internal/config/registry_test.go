package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/ssdp/internal/device"
	"github.com/muurk/ssdp/internal/discovery"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}
	if filepath.Base(configDir) != "ssdp" {
		t.Errorf("GetConfigDir() = %v, should end in 'ssdp'", configDir)
	}

	t.Logf("Config directory: %s", configDir)
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux and other Unix systems")
	}

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	got, err := GetConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(xdg, "ssdp", "config.yaml"); got != want {
		t.Errorf("GetConfigPath() = %v, want %v", got, want)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %v, want %v", cfg.Version, CurrentVersion)
	}
	if cfg.Network.TTL != 2 {
		t.Errorf("Network.TTL = %v, want 2", cfg.Network.TTL)
	}
	if cfg.Discovery.ExpirePeriod != time.Minute || cfg.Discovery.SearchPeriod != 5*time.Minute {
		t.Errorf("Discovery = %+v", cfg.Discovery)
	}
	if cfg.Server.Listen != DefaultListen {
		t.Errorf("Server.Listen = %v", cfg.Server.Listen)
	}
	if cfg.Device != nil {
		t.Error("NewConfig() should not define a device")
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Discovery.MX != discovery.DefaultMX {
		t.Errorf("Discovery.MX = %d", cfg.Discovery.MX)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "partial file is completed with defaults",
			yaml: "network:\n  interface: eth0\ndiscovery:\n  ping_interval: 30s\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Network.Interface != "eth0" || cfg.Network.TTL != 2 {
					t.Errorf("Network = %+v", cfg.Network)
				}
				if cfg.Discovery.PingInterval != 30*time.Second {
					t.Errorf("PingInterval = %v", cfg.Discovery.PingInterval)
				}
				if cfg.Discovery.ExpirePeriod != discovery.DefaultExpirePeriod {
					t.Errorf("ExpirePeriod = %v", cfg.Discovery.ExpirePeriod)
				}
			},
		},
		{
			name: "device section",
			yaml: `version: 1
log_level: debug
device:
  uuid: AAAA
  device_type: urn:schemas-upnp-org:device:MediaServer:4
  location: http://192.168.1.10:8200/desc.xml
  services:
    - urn:schemas-upnp-org:service:ContentDirectory:1
  devices:
    - device_type: urn:schemas-upnp-org:device:MediaRenderer:1
      uuid: BBBB
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.LogLevel != "debug" {
					t.Errorf("LogLevel = %q", cfg.LogLevel)
				}
				if cfg.Device == nil || cfg.Device.UUID != "AAAA" || len(cfg.Device.Devices) != 1 {
					t.Fatalf("Device = %+v", cfg.Device)
				}
				if cfg.Device.MaxAge != discovery.DefaultMaxAge {
					t.Errorf("MaxAge = %v, want default", cfg.Device.MaxAge)
				}
			},
		},
		{
			name:    "unsupported version",
			yaml:    "version: 7\n",
			wantErr: "unsupported config version",
		},
		{
			name:    "invalid yaml",
			yaml:    "network: [\n",
			wantErr: "failed to parse",
		},
		{
			name:    "bad duration",
			yaml:    "network:\n  read_timeout: soon\n",
			wantErr: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parse() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := NewConfig()
	cfg.Network.Interface = "en0"
	cfg.Discovery.PingInterval = 45 * time.Second
	cfg.Device = &DeviceConfig{
		UUID:       "AAAA",
		DeviceType: "urn:schemas-upnp-org:device:MediaServer:4",
		Location:   "http://192.168.1.10:8200/desc.xml",
		MaxAge:     10 * time.Minute,
		DNSSD:      true,
	}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# SSDP Configuration File") {
		t.Error("saved file is missing its header comment")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Network.Interface != "en0" || loaded.Discovery.PingInterval != 45*time.Second {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Device == nil || loaded.Device.MaxAge != 10*time.Minute || !loaded.Device.DNSSD {
		t.Errorf("loaded.Device = %+v", loaded.Device)
	}
}

func TestDeviceConfig_Build(t *testing.T) {
	d := &DeviceConfig{
		DeviceType: "urn:schemas-upnp-org:device:MediaServer:4",
		Location:   "http://192.168.1.10:8200/desc.xml",
		Services:   []string{"urn:schemas-upnp-org:service:ContentDirectory:1"},
		Devices: []*EmbeddedDevice{
			{DeviceType: "urn:schemas-upnp-org:device:MediaRenderer:1"},
		},
	}

	root, err := d.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if !strings.HasPrefix(d.UUID, device.UUIDPrefix) || root.UDN() != d.UUID {
		t.Errorf("generated UUID %q not written back (UDN %q)", d.UUID, root.UDN())
	}
	if d.Devices[0].UUID == "" {
		t.Error("embedded device UUID not generated")
	}
	if len(root.Services()) != 1 || len(root.Devices()) != 1 || root.Devices()[0].IsRoot() {
		t.Errorf("tree = %v", root)
	}
	if got := root.USNMap().Len(); got != 5 {
		t.Errorf("USNMap().Len() = %d, want 5", got)
	}

	// A second build keeps the identity.
	again, _ := d.Build()
	if again.UDN() != root.UDN() {
		t.Errorf("UDN changed between builds: %s -> %s", root.UDN(), again.UDN())
	}
}

func TestDeviceConfig_BuildInvalid(t *testing.T) {
	d := &DeviceConfig{DeviceType: "MediaServer", Location: "http://h/d.xml"}
	if _, err := d.Build(); err == nil || !strings.Contains(err.Error(), "invalid device configuration") {
		t.Errorf("Build() error = %v", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := NewConfig()
	cfg.Network.Interface = "eth1"
	cfg.Device = &DeviceConfig{MaxAge: time.Hour, BootID: 3, ConfigID: 2}

	svc := cfg.ServiceConfig("Linux UPnP/1.1 ssdp/1.0")
	if svc.Interface != "eth1" || svc.Product != "Linux UPnP/1.1 ssdp/1.0" || svc.TTL != 2 {
		t.Errorf("ServiceConfig() = %+v", svc)
	}

	cache := cfg.CacheConfig()
	if cache.ExpirePeriod != time.Minute || cache.MX != discovery.DefaultMX {
		t.Errorf("CacheConfig() = %+v", cache)
	}

	ann := cfg.Device.AnnouncerConfig("Linux UPnP/1.1 ssdp/1.0")
	if ann.MaxAge != time.Hour || ann.Product != "Linux UPnP/1.1 ssdp/1.0" || ann.BootID != 3 {
		t.Errorf("AnnouncerConfig() = %+v", ann)
	}

	cfg.Device.Server = "Custom/1.0"
	if got := cfg.Device.AnnouncerConfig("x").Product; got != "Custom/1.0" {
		t.Errorf("SERVER override = %q", got)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := CreateDefaultConfig(path)
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if cfg.Device == nil || cfg.Device.UUID == "" {
		t.Fatal("default config should define a device with a UUID")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Device.UUID != cfg.Device.UUID {
		t.Errorf("UUID not persisted: %q vs %q", loaded.Device.UUID, cfg.Device.UUID)
	}
}

func BenchmarkGetConfigDir(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = GetConfigDir()
	}
}
