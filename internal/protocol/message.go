package protocol

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SSDP wire constants
const (
	MulticastAddrIPv4 = "239.255.255.250"
	Port              = 1900
	HostIPv4          = "239.255.255.250:1900"

	ProtoHTTP11 = "HTTP/1.1"
	TargetAny   = "*"

	MethodMSearch = "M-SEARCH"
	MethodNotify  = "NOTIFY"

	NTSAlive  = "ssdp:alive"
	NTSUpdate = "ssdp:update"
	NTSByeBye = "ssdp:byebye"

	ManDiscover = `"ssdp:discover"`

	// SearchAll is the ST that every NT satisfies.
	SearchAll = "ssdp:all"

	// RootDevice is the NT announced once per root device.
	RootDevice = "upnp:rootdevice"
)

// Kind classifies a message by its protocol role.
type Kind int

const (
	KindOtherRequest Kind = iota
	KindOtherResponse
	KindMSearch
	KindAlive
	KindUpdate
	KindByeBye
	KindSearchResponse
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case KindOtherRequest:
		return "Request"
	case KindOtherResponse:
		return "Response"
	case KindMSearch:
		return "M-SEARCH"
	case KindAlive:
		return "NOTIFY alive"
	case KindUpdate:
		return "NOTIFY update"
	case KindByeBye:
		return "NOTIFY byebye"
	case KindSearchResponse:
		return "Search response"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Message is one SSDP request or response.
//
// Derived accessors return nil when the header is absent or does not parse
// as a URI. Expiration is computed on first use and cached.
type Message interface {
	StartLine() string
	// Headers returns a copy; editing it leaves the message unchanged.
	Headers() Headers
	Kind() Kind

	NT() *url.URL
	ST() *url.URL
	USN() *url.URL
	Location() *url.URL
	NTS() string

	// Timestamp is when the message was built or received.
	Timestamp() time.Time
	// Expiration is DATE (or Timestamp) plus CACHE-CONTROL max-age.
	Expiration() time.Time
	// RemoteAddr is the sender of a received message, nil for outgoing ones.
	RemoteAddr() net.Addr

	Encode() []byte
	String() string
}

// base holds the state shared by requests and responses.
type base struct {
	Header Headers

	timestamp time.Time
	remote    net.Addr

	expOnce    sync.Once
	expiration time.Time
}

func (b *base) Headers() Headers { return b.Header.Clone() }
func (b *base) Timestamp() time.Time { return b.timestamp }
func (b *base) RemoteAddr() net.Addr { return b.remote }
func (b *base) NT() *url.URL { return b.uri(HeaderNT) }
func (b *base) ST() *url.URL { return b.uri(HeaderST) }
func (b *base) USN() *url.URL { return b.uri(HeaderUSN) }
func (b *base) Location() *url.URL { return b.uri(HeaderLocation, HeaderAL) }
func (b *base) NTS() string { return strings.TrimSpace(b.Header.Value(HeaderNTS)) }
func (b *base) Expiration() time.Time { return b.computeExpiration() }

// MaxAge returns the CACHE-CONTROL max-age directive, 0 when absent.
func (b *base) MaxAge() time.Duration {
	return time.Duration(parseMaxAge(b.Header.Value(HeaderCacheControl))) * time.Second
}

// MX returns the MX header clamped to 1..5 seconds. ok is false when the
// header is missing or not an integer.
func (b *base) MX() (mx int, ok bool) {
	v, present := b.Header.Get(HeaderMX)
	if !present {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, false
	}
	if n < 1 {
		n = 1
	}
	if n > 5 {
		n = 5
	}
	return n, true
}

// BootID returns BOOTID.UPNP.ORG, or -1 when absent or invalid.
func (b *base) BootID() int { return b.intHeader(HeaderBootID) }

// ConfigID returns CONFIGID.UPNP.ORG, or -1 when absent or invalid.
func (b *base) ConfigID() int { return b.intHeader(HeaderConfigID) }

func (b *base) intHeader(name string) int {
	v, ok := b.Header.Get(name)
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func (b *base) uri(names ...string) *url.URL {
	v, ok := b.Header.Get(names...)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	// AL carries <uri> and may list several
	if strings.HasPrefix(v, "<") {
		end := strings.IndexByte(v, '>')
		if end < 0 {
			return nil
		}
		v = v[1:end]
	}
	if v == "" {
		return nil
	}
	u, err := url.Parse(v)
	if err != nil {
		return nil
	}
	return u
}

func (b *base) computeExpiration() time.Time {
	b.expOnce.Do(func() {
		start := b.timestamp
		if v, ok := b.Header.Get(HeaderDate); ok {
			if t, err := http.ParseTime(strings.TrimSpace(v)); err == nil {
				start = t
			}
		}
		b.expiration = start.Add(time.Duration(parseMaxAge(b.Header.Value(HeaderCacheControl))) * time.Second)
	})
	return b.expiration
}

// parseMaxAge extracts max-age=N from a CACHE-CONTROL value.
func parseMaxAge(cacheControl string) int {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, found := strings.Cut(directive, "=")
		if !found || !strings.EqualFold(strings.TrimSpace(name), "max-age") {
			continue
		}
		n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(value), `"`))
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// Request is an SSDP request: M-SEARCH, NOTIFY or anything else with a
// request line.
type Request struct {
	base
	Method string
	Target string
	Proto  string
}

// NewRequest returns an empty request stamped with the current time.
func NewRequest(method string) *Request {
	return &Request{
		base:   base{timestamp: time.Now()},
		Method: method,
		Target: TargetAny,
		Proto:  ProtoHTTP11,
	}
}

func (r *Request) StartLine() string {
	return r.Method + " " + r.Target + " " + r.Proto
}

func (r *Request) Kind() Kind {
	switch {
	case strings.EqualFold(r.Method, MethodMSearch):
		return KindMSearch
	case strings.EqualFold(r.Method, MethodNotify):
		switch strings.ToLower(r.NTS()) {
		case NTSAlive:
			return KindAlive
		case NTSUpdate:
			return KindUpdate
		case NTSByeBye:
			return KindByeBye
		}
	}
	return KindOtherRequest
}

func (r *Request) Encode() []byte { return encode(r.StartLine(), r.Header) }

func (r *Request) String() string {
	return fmt.Sprintf("Request{%s, kind=%s, headers=%d}", r.StartLine(), r.Kind(), len(r.Header))
}

// Response is an SSDP response, normally a 200 OK to an M-SEARCH.
type Response struct {
	base
	Proto      string
	StatusCode int
	Reason     string
}

// NewResponse returns an empty response stamped with the current time.
func NewResponse(code int, reason string) *Response {
	return &Response{
		base:       base{timestamp: time.Now()},
		Proto:      ProtoHTTP11,
		StatusCode: code,
		Reason:     reason,
	}
}

func (r *Response) StartLine() string {
	line := r.Proto + " " + strconv.Itoa(r.StatusCode)
	if r.Reason != "" {
		line += " " + r.Reason
	}
	return line
}

func (r *Response) Kind() Kind {
	if r.StatusCode == http.StatusOK && r.Header.Has(HeaderST) && r.Header.Has(HeaderUSN) {
		return KindSearchResponse
	}
	return KindOtherResponse
}

func (r *Response) Encode() []byte { return encode(r.StartLine(), r.Header) }

func (r *Response) String() string {
	return fmt.Sprintf("Response{%s, kind=%s, headers=%d}", r.StartLine(), r.Kind(), len(r.Header))
}

// URIString returns u.String(), or "" for nil.
func URIString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
