// Package config loads and saves the YAML configuration for the ssdp tool.
//
// The file holds socket settings, control-point timing, the reporting server
// address and, for device mode, the device tree to announce. Missing fields
// take their defaults, so an absent file behaves like an empty one.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/ssdp/config.yaml or $HOME/.config/ssdp/config.yaml
//   - macOS: $HOME/.config/ssdp/config.yaml
//   - Windows: %LOCALAPPDATA%\ssdp\config.yaml
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc, err := discovery.New(cfg.ServiceConfig(version.Product()))
//	...
//	root, err := cfg.Device.Build()
//	...
//	// Persist any UUIDs Build generated.
//	if err := cfg.Save(""); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// LoadGlobal uses sync.Once for safe initialization across goroutines.
// Writes are serialized by a mutex and replace the file atomically.
package config
