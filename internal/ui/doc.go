// Package ui renders the ssdp command output with Lipgloss.
//
// Commands that run once and exit (search, browse, announce) print a
// header, then one line per message or a table of discovered entries, and
// finish with a result box. The interactive monitor lives in package tui and
// reuses the styles defined here.
//
// Example:
//
//	p := ui.NewPrinter(os.Stdout)
//	p.PrintHeader("SSDP Search", "ssdp search ssdp:all",
//	    ui.Param{Key: "MX", Value: "3"})
//	p.PrintEntries(cache.Entries(), time.Now())
//
// Output degrades to plain text when stdout is not a terminal.
package ui
