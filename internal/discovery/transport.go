package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/muurk/ssdp/internal/logging"
	"github.com/muurk/ssdp/internal/protocol"
)

// Transport moves raw SSDP datagrams. UDPTransport is the production
// implementation; tests use an in-memory one.
type Transport interface {
	// Send writes one datagram to dest.
	Send(packet []byte, dest net.Addr) error

	// Receive blocks until a datagram arrives or the deadline passes. A
	// deadline expiry returns an error for which IsTimeout is true.
	Receive(deadline time.Time) (packet []byte, from net.Addr, err error)

	// Group is the multicast destination for Send.
	Group() net.Addr

	Close() error
}

// UDPTransport is an IPv4 multicast socket bound to the SSDP port.
type UDPTransport struct {
	conn   *net.UDPConn
	pc     *ipv4.PacketConn
	group  *net.UDPAddr
	joined []net.Interface
	buf    []byte
}

// TransportOptions configures NewUDPTransport.
type TransportOptions struct {
	// Interface restricts the group join to one interface by name; empty
	// joins every up, multicast-capable interface.
	Interface string

	// TTL is the multicast hop limit (UPnP recommends 2 by default)
	TTL int

	// Port overrides the listening port; 0 means protocol.Port.
	Port int
}

// NewUDPTransport binds the SSDP port, joins 239.255.255.250 and enables
// multicast loopback so local devices and control points see each other.
func NewUDPTransport(opts TransportOptions) (*UDPTransport, error) {
	port := opts.Port
	if port == 0 {
		port = protocol.Port
	}

	group, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(protocol.MulticastAddrIPv4, strconv.Itoa(port)))
	if err != nil {
		return nil, &NetworkError{
			Operation: "resolve multicast address",
			Err:       err,
			Details:   fmt.Sprintf("%s:%d", protocol.MulticastAddrIPv4, port),
		}
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, &NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind to port %d", port),
		}
	}

	t := &UDPTransport{
		conn:  conn,
		pc:    ipv4.NewPacketConn(conn),
		group: group,
		buf:   make([]byte, protocol.MaxDatagramSize),
	}

	if err := t.join(opts.Interface); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if opts.TTL > 0 {
		if err := t.pc.SetMulticastTTL(opts.TTL); err != nil {
			_ = t.Close()
			return nil, &NetworkError{Operation: "configure socket", Err: err, Details: "set multicast TTL"}
		}
	}
	if err := t.pc.SetMulticastLoopback(true); err != nil {
		_ = t.Close()
		return nil, &NetworkError{Operation: "configure socket", Err: err, Details: "enable multicast loopback"}
	}

	return t, nil
}

func (t *UDPTransport) join(name string) error {
	var candidates []net.Interface
	if name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return &NetworkError{Operation: "lookup interface", Err: err, Details: name}
		}
		candidates = []net.Interface{*ifi}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return &NetworkError{Operation: "list interfaces", Err: err}
		}
		for _, ifi := range all {
			if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
				candidates = append(candidates, ifi)
			}
		}
	}

	var errs error
	for i := range candidates {
		ifi := candidates[i]
		if err := t.pc.JoinGroup(&ifi, t.group); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", ifi.Name, err))
			continue
		}
		logging.Debug("Joined SSDP multicast group", zap.String("interface", ifi.Name))
		t.joined = append(t.joined, ifi)
	}

	if len(t.joined) == 0 {
		return &NetworkError{
			Operation: "join group",
			Err:       errs,
			Details:   fmt.Sprintf("no interface could join %s", t.group),
		}
	}
	if name != "" {
		if err := t.pc.SetMulticastInterface(&t.joined[0]); err != nil {
			return &NetworkError{Operation: "configure socket", Err: err, Details: "set multicast interface " + name}
		}
	}
	return nil
}

// Group returns the SSDP multicast address.
func (t *UDPTransport) Group() net.Addr { return t.group }

// Interfaces returns the interfaces that joined the group.
func (t *UDPTransport) Interfaces() []net.Interface { return t.joined }

// LocalAddr returns the bound socket address.
func (t *UDPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Send writes packet to dest.
func (t *UDPTransport) Send(packet []byte, dest net.Addr) error {
	n, err := t.conn.WriteTo(packet, dest)
	if err != nil {
		return &NetworkError{
			Operation: "send datagram",
			Err:       err,
			Details:   fmt.Sprintf("failed to send %d bytes to %s", len(packet), dest),
		}
	}
	if n != len(packet) {
		return &NetworkError{
			Operation: "send datagram",
			Err:       fmt.Errorf("partial write: %d/%d bytes", n, len(packet)),
		}
	}
	return nil
}

// Receive reads one datagram. The returned slice is owned by the caller.
func (t *UDPTransport) Receive(deadline time.Time) ([]byte, net.Addr, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, &NetworkError{Operation: "set read deadline", Err: err}
	}

	n, from, err := t.conn.ReadFrom(t.buf)
	if err != nil {
		return nil, nil, &NetworkError{Operation: "receive datagram", Err: err}
	}

	packet := make([]byte, n)
	copy(packet, t.buf[:n])
	return packet, from, nil
}

// Close leaves the group on every joined interface and closes the socket.
func (t *UDPTransport) Close() error {
	var err error
	for i := range t.joined {
		err = multierr.Append(err, t.pc.LeaveGroup(&t.joined[i], t.group))
	}
	if cerr := t.conn.Close(); cerr != nil {
		err = multierr.Append(err, &NetworkError{Operation: "close socket", Err: cerr})
	}
	return err
}
