package tui

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/ssdp/internal/discovery"
	"github.com/muurk/ssdp/internal/protocol"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	entries []discovery.Entry
}

func (s *stubSource) Entries() []discovery.Entry { return s.entries }

func entry(usn string, ttl time.Duration) discovery.Entry {
	return discovery.Entry{
		USN:        usn,
		Type:       "upnp:rootdevice",
		Location:   "http://192.168.1.10/d.xml",
		Expiration: fixedNow.Add(ttl),
	}
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func newTestModel(src *stubSource, rescan func()) Model {
	return NewModel(Options{
		Source: src,
		Rescan: rescan,
		Now:    func() time.Time { return fixedNow },
	})
}

func TestNewModel(t *testing.T) {
	m := newTestModel(&stubSource{}, nil)

	if m.opts.Target != "ssdp:all" || m.opts.Refresh != DefaultRefresh {
		t.Errorf("defaults not applied: %+v", m.opts)
	}
	if m.Keys.Rescan.Enabled() {
		t.Error("rescan key enabled without a Rescan func")
	}
	if !strings.HasPrefix(m.Status, "Waiting") {
		t.Errorf("Status = %q", m.Status)
	}
	if m.Init() == nil {
		t.Error("Init() should start the refresh ticker")
	}
}

func TestModel_TickRefreshesRows(t *testing.T) {
	src := &stubSource{}
	m := newTestModel(src, nil)

	src.entries = []discovery.Entry{
		entry("uuid:AAAA", 30*time.Minute),
		entry("uuid:BBBB", 42*time.Second),
	}
	updated, cmd := m.Update(tickMsg(fixedNow))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}

	got := updated.(Model)
	rows := got.Table.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "uuid:AAAA" || rows[0][3] != "30m00s" || rows[1][3] != "42s" {
		t.Errorf("rows = %v", rows)
	}
	if !strings.HasPrefix(got.Status, "2 entries") {
		t.Errorf("Status = %q", got.Status)
	}
}

func TestModel_Rescan(t *testing.T) {
	calls := 0
	m := newTestModel(&stubSource{}, func() { calls++ })

	updated, cmd := m.Update(runeKey('r'))
	if calls != 0 {
		t.Error("Rescan ran inside Update")
	}
	if cmd == nil {
		t.Fatal("rescan key returned no command")
	}
	cmd()
	if calls != 1 {
		t.Errorf("Rescan called %d times, want 1", calls)
	}
	if got := updated.(Model).Status; got != "Searching for ssdp:all..." {
		t.Errorf("Status = %q", got)
	}
}

func TestModel_RescanDisabled(t *testing.T) {
	m := newTestModel(&stubSource{}, nil)

	// Must not call a nil Rescan.
	updated, cmd := m.Update(runeKey('r'))
	if cmd != nil {
		cmd()
	}
	if strings.HasPrefix(updated.(Model).Status, "Searching") {
		t.Error("rescan ran while disabled")
	}
}

func TestModel_Quit(t *testing.T) {
	m := newTestModel(&stubSource{}, nil)

	updated, cmd := m.Update(runeKey('q'))
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit key should return tea.Quit")
	}
	if v := updated.(Model).View(); v != "" {
		t.Errorf("View() after quit = %q", v)
	}
}

func TestModel_EventLogBounded(t *testing.T) {
	var model tea.Model = newTestModel(&stubSource{}, nil)

	for i := 0; i < EventLogLines+3; i++ {
		model, _ = model.Update(EventMsg{Line: fmt.Sprintf("event %d", i)})
	}

	events := model.(Model).Events
	if len(events) != EventLogLines {
		t.Fatalf("kept %d events, want %d", len(events), EventLogLines)
	}
	if events[len(events)-1] != fmt.Sprintf("event %d", EventLogLines+2) {
		t.Errorf("last event = %q", events[len(events)-1])
	}
}

func TestModel_Resize(t *testing.T) {
	m := newTestModel(&stubSource{}, nil)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	got := updated.(Model)

	if got.Table.Height() < MinTableHeight {
		t.Errorf("table height = %d", got.Table.Height())
	}
	total := 0
	for _, c := range got.Table.Columns() {
		total += c.Width
	}
	if total > 120 {
		t.Errorf("columns sum to %d, wider than the window", total)
	}

	view := got.View()
	for _, want := range []string{AppName, "USN", "No traffic yet"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestColumns(t *testing.T) {
	cols := columns(20)
	if len(cols) != 4 || cols[3].Title != "TTL" {
		t.Fatalf("columns = %+v", cols)
	}
	for _, c := range cols {
		if c.Width <= 0 {
			t.Errorf("column %s width = %d", c.Title, c.Width)
		}
	}
}

// nopTransport accepts every send and never receives.
type nopTransport struct{}

func (nopTransport) Send([]byte, net.Addr) error { return nil }
func (nopTransport) Receive(time.Time) ([]byte, net.Addr, error) {
	return nil, nil, net.ErrClosed
}
func (nopTransport) Group() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv4), Port: protocol.Port}
}
func (nopTransport) Close() error { return nil }

func TestProgram_RescanFeedsEventLog(t *testing.T) {
	svc := discovery.NewWithTransport(discovery.Config{}, nopTransport{})
	t.Cleanup(func() { _ = svc.Stop() })

	searched := make(chan struct{})
	model := NewModel(Options{
		Source: &stubSource{},
		Rescan: func() {
			svc.MSearch(1, protocol.SearchAll)
			close(searched)
		},
	})
	p := tea.NewProgram(model, tea.WithInput(nil), tea.WithoutRenderer())
	if err := svc.AddListener(Listener(p)); err != nil {
		t.Fatal(err)
	}

	type result struct {
		model tea.Model
		err   error
	}
	done := make(chan result, 1)
	go func() {
		m, err := p.Run()
		done <- result{m, err}
	}()

	p.Send(runeKey('r'))
	select {
	case <-searched:
	case <-time.After(3 * time.Second):
		p.Kill()
		t.Fatal("search event was not accepted by the running program")
	}

	p.Send(runeKey('q'))
	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Run() error = %v", res.err)
		}
		events := res.model.(Model).Events
		if len(events) != 1 || !strings.Contains(events[0], "M-SEARCH") {
			t.Errorf("Events = %q, want the sent M-SEARCH", events)
		}
	case <-time.After(3 * time.Second):
		p.Kill()
		t.Fatal("program did not quit")
	}
}
