// Package device models the device tree an SSDP announcer advertises and
// expands it into notification identities.
//
// Every UPnP device is advertised several times: once per notification type
// it satisfies. BuildUSNMap walks a tree of devices and services and returns
// the unique service names (USN) together with the notification types (NT)
// each one satisfies. The announcer sends one NOTIFY per (NT, USN) pair and
// answers M-SEARCH by matching the search target against every NT.
//
// # Example
//
//	root := &device.Device{
//	    Type:           "urn:schemas-upnp-org:device:MediaServer:4",
//	    UUID:           "AAAA",
//	    Root:           true,
//	    DescriptionURL: "http://192.168.1.10:8200/desc.xml",
//	}
//	root.AddService("urn:schemas-upnp-org:service:ContentDirectory:1")
//
//	root.USNMap().Each(func(nt, usn string) {
//	    fmt.Println(nt, usn)
//	})
//	// upnp:rootdevice                                   uuid:AAAA
//	// uuid:AAAA                                         uuid:AAAA
//	// urn:schemas-upnp-org:device:MediaServer:4         uuid:AAAA::urn:schemas-upnp-org:device:MediaServer:4
//	// urn:schemas-upnp-org:service:ContentDirectory:1   uuid:AAAA::urn:schemas-upnp-org:service:ContentDirectory:1
package device
