// Package tui implements the interactive "ssdp monitor" screen with Bubble Tea.
//
// The monitor shows a discovery cache as a table that is rebuilt every
// second, with a status line and a short log of recent traffic underneath.
//
// # Keys
//
//   - ↑/k and ↓/j move the selection
//   - r sends a new M-SEARCH for the monitored target
//   - q, esc or ctrl+c quit
//
// # Wiring
//
// Run attaches a discovery.Listener that forwards every sent and received
// message to the program as an EventMsg, and detaches it on exit:
//
//	err := tui.Run(tui.Options{
//	    Target: "ssdp:all",
//	    Source: cache,
//	    Rescan: func() { svc.MSearch(3, "ssdp:all") },
//	}, svc)
//
// The Model is a plain value and can be driven directly in tests by calling
// Update with tea messages.
package tui
