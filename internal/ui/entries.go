package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/muurk/ssdp/internal/discovery"
	"github.com/muurk/ssdp/internal/protocol"
)

// EntryColumns are the headings of the entries table.
var EntryColumns = []string{"USN", "TYPE", "LOCATION", "TTL"}

// RenderEntries renders cache entries as a bordered table. TTLs are taken
// relative to now.
func RenderEntries(entries []discovery.Entry, now time.Time, width int) string {
	if len(entries) == 0 {
		return MutedStyle.Render("  No devices found")
	}

	rows := make([][]string, len(entries))
	expiring := make([]bool, len(entries))
	for i, e := range entries {
		ttl := e.TTL(now)
		rows[i] = []string{e.USN, e.Type, e.Location, FormatTTL(ttl)}
		expiring[i] = ttl < ExpiringSoon*time.Second
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(PrimaryColor)).
		Headers(EntryColumns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row >= 0 && row < len(expiring) && expiring[row]:
				return TableExpiringStyle
			default:
				return TableCellStyle
			}
		})
	if width > 0 {
		t = t.Width(width)
	}
	return t.String()
}

// FormatTTL renders a remaining lifetime as whole seconds, minutes or hours.
func FormatTTL(d time.Duration) string {
	switch {
	case d <= 0:
		return "expired"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatEvent renders one sent or received message as a single line:
// marker, kind, then USN and type. The remote address is appended for
// received messages.
func FormatEvent(sent bool, msg protocol.Message) string {
	marker, style := RecvMarker, MutedStyle
	if sent {
		marker, style = SentMarker, SentStyle
	}
	switch msg.Kind() {
	case protocol.KindAlive, protocol.KindUpdate, protocol.KindSearchResponse:
		if !sent {
			style = AliveStyle
		}
	case protocol.KindByeBye:
		style = ByeByeStyle
	}

	parts := []string{marker, fmt.Sprintf("%-15s", msg.Kind())}
	if usn := protocol.URIString(msg.USN()); usn != "" {
		parts = append(parts, usn)
	}

	target := msg.NT()
	if msg.Kind() == protocol.KindMSearch || msg.Kind() == protocol.KindSearchResponse {
		target = msg.ST()
	}
	if t := protocol.URIString(target); t != "" {
		parts = append(parts, t)
	}

	line := style.Render(strings.Join(parts, " "))
	if addr := msg.RemoteAddr(); addr != nil && !sent {
		line += " " + MutedStyle.Render("from "+addr.String())
	}
	return line
}
