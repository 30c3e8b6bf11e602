package protocol

import (
	"strings"
)

// Recognized SSDP header names
const (
	HeaderHost         = "HOST"
	HeaderMan          = "MAN"
	HeaderMX           = "MX"
	HeaderST           = "ST"
	HeaderNT           = "NT"
	HeaderNTS          = "NTS"
	HeaderUSN          = "USN"
	HeaderLocation     = "LOCATION"
	HeaderAL           = "AL"
	HeaderCacheControl = "CACHE-CONTROL"
	HeaderDate         = "DATE"
	HeaderServer       = "SERVER"
	HeaderExt          = "EXT"
	HeaderBootID       = "BOOTID.UPNP.ORG"
	HeaderConfigID     = "CONFIGID.UPNP.ORG"
	HeaderSearchPort   = "SEARCHPORT.UPNP.ORG"
	HeaderUserAgent    = "USER-AGENT"
)

// Header is a single name/value pair. The value is kept verbatim.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered, multi-valued header collection.
// Name comparison is case-insensitive.
type Headers []Header

// Get returns the value of the first header among names, trying names in
// the order given. The second result reports whether any was present.
func (h Headers) Get(names ...string) (string, bool) {
	for _, name := range names {
		for _, hdr := range h {
			if strings.EqualFold(hdr.Name, name) {
				return hdr.Value, true
			}
		}
	}
	return "", false
}

// Value returns the first value for name, or "" when absent.
func (h Headers) Value(name string) string {
	v, _ := h.Get(name)
	return v
}

// Values returns every value for name in order.
func (h Headers) Values(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Has reports whether a header with the given name is present.
func (h Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Add appends a header, keeping any existing values.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Set replaces every header called name with a single header. The new
// header takes the position of the first one removed, or is appended.
// Set and Del build a new slice, so copies taken earlier are unaffected.
func (h *Headers) Set(name, value string) {
	out := make(Headers, 0, len(*h)+1)
	placed := false
	for _, hdr := range *h {
		if strings.EqualFold(hdr.Name, name) {
			if !placed {
				out = append(out, Header{Name: name, Value: value})
				placed = true
			}
			continue
		}
		out = append(out, hdr)
	}
	if !placed {
		out = append(out, Header{Name: name, Value: value})
	}
	*h = out
}

// Del removes every header called name.
func (h *Headers) Del(name string) {
	out := make(Headers, 0, len(*h))
	for _, hdr := range *h {
		if !strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr)
		}
	}
	*h = out
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Map returns the headers keyed by upper-cased name, joining repeated
// values with ", ". Used for logging and JSON reporting.
func (h Headers) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, hdr := range h {
		key := strings.ToUpper(hdr.Name)
		if prev, ok := m[key]; ok {
			m[key] = prev + ", " + hdr.Value
			continue
		}
		m[key] = hdr.Value
	}
	return m
}
