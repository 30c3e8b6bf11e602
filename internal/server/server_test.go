package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/muurk/ssdp/internal/discovery"
	"github.com/muurk/ssdp/internal/protocol"
)

const (
	mediaServer = "urn:schemas-upnp-org:device:MediaServer:4"
	serverUSN   = "uuid:AAAA::urn:schemas-upnp-org:device:MediaServer:4"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubEntries struct {
	entries []discovery.Entry
	lastST  string
}

func (s *stubEntries) Entries() []discovery.Entry { return s.entries }

func (s *stubEntries) Filter(st string) []discovery.Entry {
	s.lastST = st
	var out []discovery.Entry
	for _, e := range s.entries {
		if protocol.Matches(st, e.Type) {
			out = append(out, e)
		}
	}
	return out
}

type searchRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *searchRecorder) search(mx int, st string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("%s/%d", st, mx))
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.Entries == nil {
		cfg.Entries = &stubEntries{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return fixedNow }
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.hub.closeAll()
		ts.Close()
	})
	return s, ts
}

func received(t *testing.T, msg interface{ Encode() []byte }) protocol.Message {
	t.Helper()
	from := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 1900}
	parsed, err := protocol.ParseDatagram(msg.Encode(), from, fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}

func TestNew_RequiresEntries(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without an entry source should fail")
	}
}

func TestHandleEntries(t *testing.T) {
	source := &stubEntries{entries: []discovery.Entry{
		{USN: serverUSN, Type: mediaServer, Location: "http://192.168.1.10/d.xml", Kind: "NOTIFY alive"},
		{USN: "uuid:BBBB", Type: "uuid:BBBB"},
	}}
	_, ts := newTestServer(t, Config{Entries: source})

	tests := []struct {
		name     string
		query    string
		wantUSNs []string
	}{
		{name: "all", wantUSNs: []string{serverUSN, "uuid:BBBB"}},
		{name: "older version matches", query: "?st=urn:schemas-upnp-org:device:MediaServer:1", wantUSNs: []string{serverUSN}},
		{name: "no match is an empty array", query: "?st=uuid:CCCC", wantUSNs: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/entries" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var got []discovery.Entry
			if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
				t.Fatal(err)
			}
			if got == nil {
				t.Fatal("body decoded to null, want an array")
			}
			if len(got) != len(tt.wantUSNs) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.wantUSNs))
			}
			for i, usn := range tt.wantUSNs {
				if got[i].USN != usn {
					t.Errorf("entry %d = %q, want %q", i, got[i].USN, usn)
				}
			}
		})
	}
}

func TestHandleSearch(t *testing.T) {
	rec := &searchRecorder{}
	_, ts := newTestServer(t, Config{Search: rec.search})

	tests := []struct {
		query      string
		wantStatus int
	}{
		{"", http.StatusAccepted},
		{"?st=upnp:rootdevice&mx=1", http.StatusAccepted},
		{"?mx=0", http.StatusBadRequest},
		{"?mx=abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := http.Post(ts.URL+"/search"+tt.query, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("POST /search%s status = %d, want %d", tt.query, resp.StatusCode, tt.wantStatus)
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{"ssdp:all/3", "upnp:rootdevice/1"}
	if strings.Join(rec.calls, ",") != strings.Join(want, ",") {
		t.Errorf("searches = %v, want %v", rec.calls, want)
	}
}

func TestHandleSearch_Disabled(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	resp, err := http.Post(ts.URL+"/search", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/search")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /search status = %d, want 405", resp.StatusCode)
	}
}

func TestMetrics(t *testing.T) {
	source := &stubEntries{entries: []discovery.Entry{{USN: serverUSN, Type: mediaServer}}}
	s, ts := newTestServer(t, Config{Entries: source})

	search := protocol.NewMSearch(3, protocol.SearchAll)
	s.OnSend(nil, search)
	s.OnSend(nil, search)
	s.OnReceive(nil, received(t, protocol.NewByeBye(mediaServer, serverUSN)))

	if got := testutil.ToFloat64(s.metrics.messagesTotal.WithLabelValues(DirectionSent, "M-SEARCH")); got != 2 {
		t.Errorf("sent M-SEARCH = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.metrics.messagesTotal.WithLabelValues(DirectionReceived, "NOTIFY byebye")); got != 1 {
		t.Errorf("received byebye = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.metrics.bytesTotal.WithLabelValues(DirectionSent)); got != float64(2*len(search.Encode())) {
		t.Errorf("sent bytes = %v", got)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"ssdp_discovery_cache_entries 1",
		"ssdp_server_event_subscribers 0",
		`ssdp_discovery_messages_total{direction="sent",kind="M-SEARCH"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestNewEvent(t *testing.T) {
	tests := []struct {
		name        string
		direction   string
		msg         protocol.Message
		wantKind    string
		wantTarget  string
		wantRemote  string
		wantExpires bool
	}{
		{
			name:        "received alive",
			direction:   DirectionReceived,
			msg:         received(t, protocol.NewAlive(mediaServer, serverUSN, "http://192.168.1.10/d.xml", 30*time.Minute)),
			wantKind:    "NOTIFY alive",
			wantTarget:  mediaServer,
			wantRemote:  "192.168.1.10:1900",
			wantExpires: true,
		},
		{
			name:       "sent search",
			direction:  DirectionSent,
			msg:        protocol.NewMSearch(3, protocol.RootDevice),
			wantKind:   "M-SEARCH",
			wantTarget: protocol.RootDevice,
		},
		{
			name:       "byebye",
			direction:  DirectionReceived,
			msg:        received(t, protocol.NewByeBye(mediaServer, serverUSN)),
			wantKind:   "NOTIFY byebye",
			wantTarget: mediaServer,
			wantRemote: "192.168.1.10:1900",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvent(tt.direction, tt.msg, fixedNow)
			if e.Kind != tt.wantKind || e.Target != tt.wantTarget || e.Remote != tt.wantRemote {
				t.Errorf("NewEvent() = %+v", e)
			}
			if e.Direction != tt.direction || !e.Time.Equal(fixedNow) {
				t.Errorf("direction/time = %s/%v", e.Direction, e.Time)
			}
			if got := !e.Expires.IsZero(); got != tt.wantExpires {
				t.Errorf("Expires set = %v, want %v", got, tt.wantExpires)
			}
		})
	}
}

func dialEvents(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for s.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Subscribers() = %d, want %d", s.Subscribers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEvents_Stream(t *testing.T) {
	s, ts := newTestServer(t, Config{})

	// Nothing is marshalled without subscribers.
	s.OnSend(nil, protocol.NewMSearch(1, protocol.SearchAll))

	conn := dialEvents(t, ts)
	waitSubscribers(t, s, 1)

	s.OnSend(nil, protocol.NewMSearch(2, protocol.SearchAll))
	s.OnReceive(nil, received(t, protocol.NewAlive(mediaServer, serverUSN, "http://192.168.1.10/d.xml", time.Hour)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}

	if first.Direction != DirectionSent || first.Kind != "M-SEARCH" {
		t.Errorf("first event = %+v", first)
	}
	if second.Direction != DirectionReceived || second.USN != serverUSN {
		t.Errorf("second event = %+v", second)
	}
}

func TestEvents_ClientDisconnect(t *testing.T) {
	s, ts := newTestServer(t, Config{})

	conn := dialEvents(t, ts)
	waitSubscribers(t, s, 1)

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitSubscribers(t, s, 0)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := newHub()
	c := &client{send: make(chan []byte, 1), remote: "test"}
	h.add(c)

	h.broadcast([]byte("1"))
	h.broadcast([]byte("2"))

	if h.len() != 0 {
		t.Errorf("slow subscriber kept, len = %d", h.len())
	}
	if data := <-c.send; string(data) != "1" {
		t.Errorf("first event = %q", data)
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed")
	}

	// Removing again is a no-op.
	h.remove(c)
}

func TestHub_ClosedRejectsNewClients(t *testing.T) {
	h := newHub()
	h.closeAll()
	if h.add(&client{send: make(chan []byte, 1)}) {
		t.Error("add() after closeAll should fail")
	}
}

func TestStart_Shutdown(t *testing.T) {
	s, err := New(Config{Listen: "127.0.0.1:0", Entries: &stubEntries{}})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	url := "http://" + s.Addr().String() + "/healthz"
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}

	if _, err := http.Get(url); err == nil {
		t.Error("server still accepting after shutdown")
	}
}
