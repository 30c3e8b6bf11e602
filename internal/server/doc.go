// Package server exposes a running discovery service over HTTP.
//
// # Endpoints
//
//   - GET /entries returns the cache as a JSON array, optionally narrowed
//     with ?st= using the SSDP matching rule.
//   - POST /search sends an M-SEARCH (?st= defaults to ssdp:all, ?mx= to 3).
//   - GET /events upgrades to a WebSocket and streams one JSON Event per
//     message the service sends or receives.
//   - GET /metrics serves Prometheus metrics: message and byte counters by
//     direction, cache size and subscriber count.
//   - GET /healthz answers 204.
//
// # Usage Example
//
//	srv, err := server.New(server.Config{
//	    Listen:  "127.0.0.1:8900",
//	    Entries: cache,
//	    Search:  svc.MSearch,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = svc.AddListener(srv)
//
//	// Start blocks until ctx is cancelled.
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Event Stream
//
// Each subscriber has a bounded buffer. The discovery goroutines never block
// on a subscriber; one that falls behind is disconnected. Subscribers are
// pinged every 54 seconds and dropped when no pong arrives within a minute.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start stops accepting connections, sends
// a close frame to every subscriber and waits for their goroutines, bounded
// by ShutdownTimeout.
package server
