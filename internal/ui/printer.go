package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muurk/ssdp/internal/discovery"
	"github.com/muurk/ssdp/internal/protocol"
)

// Printer provides methods for printing UI components to a writer.
// Commands print through a Printer so tests can capture the output.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// WithWidth overrides the detected terminal width.
func (p *Printer) WithWidth(width int) *Printer {
	p.width = width
	return p
}

// Width returns the width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Print writes content to the output
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Param) {
	p.Println(NewHeader(title, command, params...).SetWidth(p.width).Render())
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details ...Param) {
	p.Println(NewSuccessResult(title, details...).SetWidth(p.width).Render())
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting ...string) {
	p.Println(NewFailureResult(title, err, troubleshooting...).SetWidth(p.width).Render())
}

// PrintEntries prints the entries table
func (p *Printer) PrintEntries(entries []discovery.Entry, now time.Time) {
	p.Println(RenderEntries(entries, now, p.width))
}

// PrintEvent prints one message line
func (p *Printer) PrintEvent(sent bool, msg protocol.Message) {
	p.Println(FormatEvent(sent, msg))
}

// PrintMirrors prints DNS-SD mirror entries, one per line.
func (p *Printer) PrintMirrors(mirrors []*discovery.MirrorEntry) {
	if len(mirrors) == 0 {
		p.Println(MutedStyle.Render("  No DNS-SD mirrors found"))
		return
	}
	for _, m := range mirrors {
		p.Println("  " + m.String())
	}
}
