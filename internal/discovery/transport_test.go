package discovery

import (
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/muurk/ssdp/internal/protocol"
)

var testGroup = &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv4), Port: protocol.Port}

type datagram struct {
	data []byte
	from net.Addr
	to   net.Addr
}

// memNetwork delivers multicast datagrams to every attached transport,
// the sender included, and unicast ones to the addressed transport.
type memNetwork struct {
	mu    sync.Mutex
	nodes []*memTransport
}

func (n *memNetwork) attach(ip string) *memTransport {
	t := newMemTransport(&net.UDPAddr{IP: net.ParseIP(ip), Port: protocol.Port})
	t.net = n
	n.mu.Lock()
	n.nodes = append(n.nodes, t)
	n.mu.Unlock()
	return t
}

func (n *memNetwork) route(d datagram) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, node := range n.nodes {
		if d.to.String() == testGroup.String() || d.to.String() == node.addr.String() {
			node.deliver(d.data, d.from)
		}
	}
}

// memTransport is an in-memory Transport.
type memTransport struct {
	addr  net.Addr
	net   *memNetwork
	inbox chan datagram

	mu      sync.Mutex
	sent    []datagram
	sendErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newMemTransport(addr net.Addr) *memTransport {
	return &memTransport{
		addr:   addr,
		inbox:  make(chan datagram, 64),
		closed: make(chan struct{}),
	}
}

func (t *memTransport) Group() net.Addr { return testGroup }

func (t *memTransport) Send(packet []byte, dest net.Addr) error {
	t.mu.Lock()
	err := t.sendErr
	t.sent = append(t.sent, datagram{data: packet, from: t.addr, to: dest})
	t.mu.Unlock()

	if err != nil {
		return &NetworkError{Operation: "send datagram", Err: err}
	}
	if t.net != nil {
		t.net.route(datagram{data: packet, from: t.addr, to: dest})
	}
	return nil
}

func (t *memTransport) Receive(deadline time.Time) ([]byte, net.Addr, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case d := <-t.inbox:
		return d.data, d.from, nil
	case <-t.closed:
		return nil, nil, &NetworkError{Operation: "receive datagram", Err: net.ErrClosed}
	case <-timer.C:
		return nil, nil, &NetworkError{Operation: "receive datagram", Err: os.ErrDeadlineExceeded}
	}
}

func (t *memTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

func (t *memTransport) deliver(data []byte, from net.Addr) {
	select {
	case t.inbox <- datagram{data: data, from: from}:
	case <-t.closed:
	}
}

func (t *memTransport) sentMessages(tb testing.TB) []protocol.Message {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]protocol.Message, 0, len(t.sent))
	for _, d := range t.sent {
		msg, err := protocol.Parse(d.data)
		if err != nil {
			tb.Fatalf("sent an unparseable datagram: %v\n%s", err, d.data)
		}
		out = append(out, msg)
	}
	return out
}

func (t *memTransport) sentTo() []net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]net.Addr, len(t.sent))
	for i, d := range t.sent {
		out[i] = d.to
	}
	return out
}

func (t *memTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// eventually polls cond until it holds or a second passes.
func eventually(tb testing.TB, what string, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("timed out waiting for %s", what)
}

// newMockClock returns a mock clock near wall time so DATE headers written
// by constructors line up with it.
func newMockClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(time.Now().Truncate(time.Second))
	return mock
}

func newTestService(t *testing.T, tr Transport, clk clock.Clock) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ReadTimeout = 20 * time.Millisecond
	cfg.Clock = clk
	s := NewWithTransport(cfg, tr)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}
