package main

import (
	"strings"
	"testing"

	"github.com/muurk/ssdp/internal/config"
	"github.com/muurk/ssdp/internal/protocol"
	"github.com/muurk/ssdp/internal/ui"
)

func TestTargetArg(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, protocol.SearchAll},
		{[]string{""}, protocol.SearchAll},
		{[]string{"upnp:rootdevice"}, "upnp:rootdevice"},
	}
	for _, tt := range tests {
		if got := targetArg(tt.args); got != tt.want {
			t.Errorf("targetArg(%q) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestInterfaceSelection(t *testing.T) {
	cfg = config.NewConfig()
	t.Cleanup(func() { cfg = nil })

	if got := interfaceLabel(); got != "all multicast interfaces" {
		t.Errorf("interfaceLabel() = %q", got)
	}
	ifaces, err := selectedInterfaces()
	if err != nil || ifaces != nil {
		t.Errorf("selectedInterfaces() = %v, %v; want all interfaces", ifaces, err)
	}

	cfg.Network.Interface = "no-such-interface0"
	if got := interfaceLabel(); got != "no-such-interface0" {
		t.Errorf("interfaceLabel() = %q", got)
	}
	if _, err := selectedInterfaces(); err == nil {
		t.Error("selectedInterfaces() with an unknown interface should fail")
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"search", "monitor", "announce", "serve", "browse", "config", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestRunMonitor_RequiresTerminal(t *testing.T) {
	if ui.IsTerminal() {
		t.Skip("stdout is a terminal")
	}
	err := runMonitor(monitorCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "interactive terminal") {
		t.Errorf("runMonitor() error = %v", err)
	}
}
