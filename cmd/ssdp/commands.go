package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/ssdp/internal/config"
	"github.com/muurk/ssdp/internal/discovery"
	"github.com/muurk/ssdp/internal/protocol"
	"github.com/muurk/ssdp/internal/server"
	"github.com/muurk/ssdp/internal/tui"
	"github.com/muurk/ssdp/internal/ui"
	"github.com/muurk/ssdp/internal/urls"
	"github.com/muurk/ssdp/internal/version"
)

// Command flags
var (
	searchMX    int
	searchWait  time.Duration
	jsonOutput  bool
	watchEvents bool
	listenAddr  string
	browseWait  time.Duration
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(announceCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(configCmd)

	searchCmd.Flags().IntVar(&searchMX, "mx", 0, "Maximum response delay in seconds (default from config)")
	searchCmd.Flags().DurationVar(&searchWait, "wait", 0, "How long to collect responses (default MX + 1s)")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	searchCmd.Flags().BoolVar(&watchEvents, "watch", false, "Print every message as it is sent or received")

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default from config)")

	browseCmd.Flags().DurationVar(&browseWait, "timeout", discovery.DefaultBrowseTimeout, "How long to browse")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
}

// searchCmd sends one M-SEARCH and prints what answered
var searchCmd = &cobra.Command{
	Use:   "search [target]",
	Short: "Search the network for devices and services",
	Long: `Send an M-SEARCH and list every device or service that matches.

The target is an ST value: ssdp:all (default), upnp:rootdevice, a uuid:
device identifier, or a urn: device or service type. A urn: target also
matches newer versions of the same type.

Search semantics: ` + urls.SSDPDraft,
	Example: `  # Everything on the network
  ssdp search

  # All MediaServer devices, version 1 or newer
  ssdp search urn:schemas-upnp-org:device:MediaServer:1

  # Show the traffic while waiting, then print JSON
  ssdp search upnp:rootdevice --watch --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	target := targetArg(args)
	mx := searchMX
	if mx <= 0 {
		mx = cfg.Discovery.MX
	}
	wait := searchWait
	if wait <= 0 {
		wait = time.Duration(mx)*time.Second + time.Second
	}

	p := ui.NewPrinter(os.Stdout)
	if !jsonOutput {
		p.PrintHeader("SSDP Search", "ssdp search "+target,
			ui.Param{Key: "Target", Value: target},
			ui.Param{Key: "MX", Value: strconv.Itoa(mx)},
			ui.Param{Key: "Interface", Value: interfaceLabel()},
		)
	}

	svc, err := newService(p)
	if err != nil {
		return err
	}
	defer svc.Stop()

	cache := discovery.NewCache(cfg.CacheConfig(), nil)
	if err := svc.AddListener(cache); err != nil {
		return err
	}
	if watchEvents && !jsonOutput {
		if err := svc.AddListener(eventPrinter(p)); err != nil {
			return err
		}
	}
	if err := svc.Start(); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	svc.MSearch(mx, target)

	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}

	entries := cache.Filter(target)
	if jsonOutput {
		if entries == nil {
			entries = []discovery.Entry{}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if watchEvents {
		p.Newline()
	}
	p.PrintEntries(entries, time.Now())
	p.Println(ui.MutedStyle.Render(fmt.Sprintf("  %d result(s) for %s", len(entries), target)))
	return nil
}

// monitorCmd runs the interactive monitor
var monitorCmd = &cobra.Command{
	Use:   "monitor [target]",
	Short: "Watch announcements live",
	Long: `Show a live table of every device and service on the network.

The table is kept current from NOTIFY announcements and search responses.
Expired entries are swept and a new search is sent when entries are about
to expire. Press r to search again and q to quit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal() {
		return errors.New("monitor needs an interactive terminal (use 'ssdp search --watch' instead)")
	}
	target := targetArg(args)

	svc, err := newService(ui.NewPrinter(os.Stderr))
	if err != nil {
		return err
	}
	defer svc.Stop()

	cache := discovery.NewCache(cfg.CacheConfig(), nil)
	if err := svc.AddListener(cache); err != nil {
		return err
	}
	if err := svc.Start(); err != nil {
		return err
	}
	if err := startSearching(svc, target); err != nil {
		return err
	}

	return tui.Run(tui.Options{
		Target: target,
		Source: filtered{cache: cache, st: target},
		Rescan: func() { svc.MSearch(cfg.Discovery.MX, target) },
	}, svc)
}

// announceCmd advertises the configured device
var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Announce the configured device tree",
	Long: `Announce the device described in the 'device' section of the
configuration file until interrupted.

Sends ssdp:alive for every notification pair, repeats it at half the
max-age, answers matching M-SEARCH requests and sends ssdp:byebye on exit.
A UUID is generated and saved on first use when the file has none.`,
	Example: `  # Write an example device configuration, then announce it
  ssdp config init
  ssdp announce --log-level info`,
	RunE: runAnnounce,
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	if cfg.Device == nil {
		return errors.New("no device configured (run 'ssdp config init' for an example)")
	}

	hadUUID := cfg.Device.UUID != ""
	root, err := cfg.Device.Build()
	if err != nil {
		return err
	}
	if !hadUUID {
		if err := cfg.Save(configPath); err != nil {
			return fmt.Errorf("failed to save generated UUID: %w", err)
		}
	}

	p := ui.NewPrinter(os.Stdout)
	announcer := discovery.NewAnnouncer(root, cfg.Device.AnnouncerConfig(version.Product()))

	p.PrintHeader("SSDP Announce", "ssdp announce",
		ui.Param{Key: "Device", Value: root.UDN()},
		ui.Param{Key: "Type", Value: root.DeviceType()},
		ui.Param{Key: "Location", Value: root.Location()},
		ui.Param{Key: "Max-Age", Value: cfg.Device.MaxAge.String()},
		ui.Param{Key: "Pairs", Value: strconv.Itoa(len(announcer.Pairs()))},
	)

	svc, err := newService(p)
	if err != nil {
		return err
	}
	defer svc.Stop()

	if err := svc.Start(); err != nil {
		return err
	}
	if err := svc.AddListener(eventPrinter(p)); err != nil {
		return err
	}
	if err := svc.AddListener(announcer); err != nil {
		return err
	}

	if cfg.Device.DNSSD {
		ifaces, err := selectedInterfaces()
		if err != nil {
			return err
		}
		mirror, err := discovery.Advertise(root, "", ifaces)
		if err != nil {
			p.PrintError("DNS-SD mirror failed", err)
		} else {
			defer mirror.Shutdown()
			p.Println(ui.MutedStyle.Render("  DNS-SD mirror published as " + mirror.Instance()))
		}
	}

	ctx, stop := signalContext(cmd)
	defer stop()
	<-ctx.Done()

	// Stop unregisters the announcer, which sends byebye.
	if err := svc.Stop(); err != nil {
		return err
	}
	p.PrintSuccess("Device withdrawn", ui.Param{Key: "Device", Value: root.UDN()})
	return nil
}

// serveCmd exposes the cache over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve [target]",
	Short: "Serve discovered devices over HTTP",
	Long: `Keep a discovery cache and expose it over HTTP:

  GET  /entries   JSON snapshot (?st= narrows with the matching rule)
  POST /search    send an M-SEARCH (?st=, ?mx=)
  GET  /events    WebSocket stream of every message sent or received`,
	Example: `  ssdp serve --listen 127.0.0.1:8900
  curl http://127.0.0.1:8900/entries?st=upnp:rootdevice`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	target := targetArg(args)
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}

	p := ui.NewPrinter(os.Stdout)
	svc, err := newService(p)
	if err != nil {
		return err
	}
	defer svc.Stop()

	cache := discovery.NewCache(cfg.CacheConfig(), nil)
	srv, err := server.New(server.Config{
		Listen:  cfg.Server.Listen,
		Entries: cache,
		Search:  svc.MSearch,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	for _, l := range []discovery.Listener{cache, srv} {
		if err := svc.AddListener(l); err != nil {
			return err
		}
	}
	if err := svc.Start(); err != nil {
		return err
	}
	if err := startSearching(svc, target); err != nil {
		return err
	}

	p.PrintHeader("SSDP Serve", "ssdp serve",
		ui.Param{Key: "HTTP", Value: "http://" + srv.Addr().String()},
		ui.Param{Key: "Target", Value: target},
		ui.Param{Key: "Interface", Value: interfaceLabel()},
	)

	ctx, stop := signalContext(cmd)
	defer stop()
	return srv.Start(ctx)
}

// browseCmd lists DNS-SD mirrors of UPnP root devices
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List root devices mirrored over DNS-SD",
	Long: `Browse mDNS for _upnp._tcp instances published by 'ssdp announce'
with dnssd enabled, and print their UDN and description location.

DNS-SD reference: ` + urls.DNSSD,
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(os.Stdout)
	p.PrintHeader("DNS-SD Browse", "ssdp browse",
		ui.Param{Key: "Service", Value: discovery.MirrorServiceType + "." + discovery.MirrorDomain},
		ui.Param{Key: "Timeout", Value: browseWait.String()},
	)

	b := discovery.NewBrowser()
	b.Timeout = browseWait

	ctx, stop := signalContext(cmd)
	defer stop()

	mirrors, err := b.Browse(ctx)
	if err != nil {
		p.PrintError("Browse failed", err, ui.NetworkTroubleshooting...)
		return err
	}
	p.PrintMirrors(mirrors)
	return nil
}

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration with an example device",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration already exists: %s", path)
		}

		created, err := config.CreateDefaultConfig(path)
		if err != nil {
			return err
		}
		ui.NewPrinter(os.Stdout).PrintSuccess("Configuration written",
			ui.Param{Key: "Path", Value: path},
			ui.Param{Key: "Device", Value: created.Device.UUID},
		)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

// --- helpers ---

// newService opens the multicast socket, printing a troubleshooting box
// when that fails.
func newService(p *ui.Printer) (*discovery.Service, error) {
	svc, err := discovery.New(cfg.ServiceConfig(version.Product()))
	if err != nil {
		var netErr *discovery.NetworkError
		if errors.As(err, &netErr) {
			p.PrintError("Cannot open SSDP socket", err, ui.NetworkTroubleshooting...)
		}
		return nil, err
	}
	return svc, nil
}

// startSearching sends the first search and, when a ping interval is
// configured, repeats it.
func startSearching(svc *discovery.Service, target string) error {
	if cfg.Discovery.PingInterval > 0 {
		_, err := svc.Discover(cfg.Discovery.PingInterval)
		if target != protocol.SearchAll {
			svc.MSearch(cfg.Discovery.MX, target)
		}
		return err
	}
	svc.MSearch(cfg.Discovery.MX, target)
	return nil
}

// eventPrinter prints every message the service handles.
func eventPrinter(p *ui.Printer) *discovery.Funcs {
	return &discovery.Funcs{
		Send:    func(_ *discovery.Service, msg protocol.Message) { p.PrintEvent(true, msg) },
		Receive: func(_ *discovery.Service, msg protocol.Message) { p.PrintEvent(false, msg) },
	}
}

// filtered narrows a cache to one search target.
type filtered struct {
	cache *discovery.Cache
	st    string
}

func (f filtered) Entries() []discovery.Entry { return f.cache.Filter(f.st) }

func targetArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return protocol.SearchAll
}

func interfaceLabel() string {
	if cfg.Network.Interface == "" {
		return "all multicast interfaces"
	}
	return cfg.Network.Interface
}

// selectedInterfaces returns the configured interface, or nil for all.
func selectedInterfaces() ([]net.Interface, error) {
	if cfg.Network.Interface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(cfg.Network.Interface)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", cfg.Network.Interface, err)
	}
	return []net.Interface{*iface}, nil
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
