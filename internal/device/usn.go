package device

import (
	"strings"

	"github.com/muurk/ssdp/internal/protocol"
)

// Pair is one (NT, USN) notification identity.
type Pair struct {
	NT  string
	USN string
}

// USNMap maps each unique service name to the notification types it
// satisfies. Keys keep insertion order and NT sets are deduplicated
// (case-insensitively) in first-seen order.
type USNMap struct {
	order []string
	nts   map[string][]string
}

// NewUSNMap returns an empty map.
func NewUSNMap() *USNMap {
	return &USNMap{nts: make(map[string][]string)}
}

// Add records that usn satisfies nt.
func (m *USNMap) Add(usn, nt string) {
	existing, ok := m.nts[usn]
	if !ok {
		m.order = append(m.order, usn)
	}
	for _, have := range existing {
		if strings.EqualFold(have, nt) {
			return
		}
	}
	m.nts[usn] = append(existing, nt)
}

// Merge folds other into m, accumulating NTs under repeated keys.
func (m *USNMap) Merge(other *USNMap) {
	for _, usn := range other.order {
		for _, nt := range other.nts[usn] {
			m.Add(usn, nt)
		}
	}
}

// USNs returns the keys in insertion order.
func (m *USNMap) USNs() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// NTs returns the notification types for usn.
func (m *USNMap) NTs(usn string) []string {
	nts := m.nts[usn]
	out := make([]string, len(nts))
	copy(out, nts)
	return out
}

// Len returns the number of USNs.
func (m *USNMap) Len() int { return len(m.order) }

// Pairs returns every (NT, USN) pair in key order.
func (m *USNMap) Pairs() []Pair {
	var pairs []Pair
	m.Each(func(nt, usn string) {
		pairs = append(pairs, Pair{NT: nt, USN: usn})
	})
	return pairs
}

// Each calls fn for every (NT, USN) pair in key order.
func (m *USNMap) Each(fn func(nt, usn string)) {
	for _, usn := range m.order {
		for _, nt := range m.nts[usn] {
			fn(nt, usn)
		}
	}
}

// Matching returns the pairs whose NT satisfies the search target st.
func (m *USNMap) Matching(st string) []Pair {
	match := protocol.Matcher(st)
	var pairs []Pair
	m.Each(func(nt, usn string) {
		if match(nt) {
			pairs = append(pairs, Pair{NT: nt, USN: usn})
		}
	})
	return pairs
}

// USN returns the unique service name for a notification type advertised
// by the device with the given UDN: the UDN itself, or UDN::urn.
func USN(udn, nt string) string {
	if strings.EqualFold(udn, nt) {
		return udn
	}
	return udn + "::" + nt
}

// BuildUSNMap expands a device tree into its notification identities:
//
//	root only:       UDN                -> upnp:rootdevice
//	every device:    UDN                -> UDN
//	                 UDN::deviceType    -> deviceType
//	every service:   UDN::serviceType   -> serviceType
//
// Embedded services come before embedded devices, each in declaration order.
func BuildUSNMap(n Node) *USNMap {
	m := NewUSNMap()
	udn := n.UDN()

	if n.IsRoot() {
		m.Add(udn, protocol.RootDevice)
	}
	m.Add(udn, udn)
	m.Add(USN(udn, n.DeviceType()), n.DeviceType())

	for _, s := range n.Services() {
		m.Merge(serviceUSNMap(udn, s))
	}
	for _, child := range n.Devices() {
		m.Merge(BuildUSNMap(child))
	}
	return m
}

func serviceUSNMap(udn string, s ServiceNode) *USNMap {
	m := NewUSNMap()
	m.Add(USN(udn, s.ServiceType()), s.ServiceType())
	return m
}
