package device

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNormalizeUDN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AAAA", "uuid:AAAA"},
		{"uuid:AAAA", "uuid:AAAA"},
		{"UUID:AAAA", "uuid:AAAA"},
		{"  uuid:b  ", "uuid:b"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeUDN(tt.in); got != tt.want {
				t.Errorf("NormalizeUDN(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewUDN(t *testing.T) {
	udn := NewUDN()
	if !strings.HasPrefix(udn, UUIDPrefix) {
		t.Fatalf("NewUDN() = %q, missing prefix", udn)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(udn, UUIDPrefix)); err != nil {
		t.Errorf("NewUDN() = %q is not a UUID: %v", udn, err)
	}
	if NewUDN() == udn {
		t.Error("NewUDN() returned the same value twice")
	}
}

func TestNewRoot(t *testing.T) {
	d := NewRoot(mediaServer4, "http://10.0.0.2/desc.xml")
	if !d.IsRoot() || d.Location() != "http://10.0.0.2/desc.xml" || d.DeviceType() != mediaServer4 {
		t.Errorf("NewRoot() = %v", d)
	}
}

func TestAddDevice_ClearsRoot(t *testing.T) {
	child := &Device{Type: renderer, UUID: "C", Root: true}
	root := &Device{Type: mediaServer4, UUID: "R", Root: true}
	root.AddDevice(child)

	if child.IsRoot() {
		t.Error("embedded device should not be root")
	}
	if len(root.Devices()) != 1 {
		t.Errorf("Devices() = %d, want 1", len(root.Devices()))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *Device
		wantErr string
	}{
		{
			name: "valid tree",
			build: func() *Device {
				d := &Device{Type: mediaServer4, UUID: "R", Root: true, DescriptionURL: "http://h/d.xml"}
				d.AddService(contentDirectory)
				return d
			},
		},
		{
			name: "missing uuid",
			build: func() *Device {
				return &Device{Type: mediaServer4, Root: true, DescriptionURL: "http://h/d.xml"}
			},
			wantErr: "no UUID",
		},
		{
			name: "duplicate udn",
			build: func() *Device {
				d := &Device{Type: mediaServer4, UUID: "R", Root: true, DescriptionURL: "http://h/d.xml"}
				d.AddDevice(&Device{Type: renderer, UUID: "uuid:R"})
				return d
			},
			wantErr: "duplicate UDN",
		},
		{
			name: "service type not a urn",
			build: func() *Device {
				d := &Device{Type: mediaServer4, UUID: "R", Root: true, DescriptionURL: "http://h/d.xml"}
				d.AddService("ContentDirectory")
				return d
			},
			wantErr: "not a urn",
		},
		{
			name: "root without location",
			build: func() *Device {
				return &Device{Type: mediaServer4, UUID: "R", Root: true}
			},
			wantErr: "location",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.build())
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWalk(t *testing.T) {
	root := &Device{Type: mediaServer4, UUID: "R", Root: true}
	child := &Device{Type: renderer, UUID: "C"}
	child.AddDevice(&Device{Type: renderer, UUID: "G"})
	root.AddDevice(child)

	var udns []string
	Walk(root, func(n Node) { udns = append(udns, n.UDN()) })

	if strings.Join(udns, ",") != "uuid:R,uuid:C,uuid:G" {
		t.Errorf("Walk order = %v", udns)
	}
}
