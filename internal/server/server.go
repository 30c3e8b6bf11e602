package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/ssdp/internal/discovery"
	"github.com/muurk/ssdp/internal/logging"
	"github.com/muurk/ssdp/internal/protocol"
)

// ShutdownTimeout bounds how long Start waits for connections to drain.
const ShutdownTimeout = 10 * time.Second

// EntrySource supplies the snapshot served on /entries.
type EntrySource interface {
	Entries() []discovery.Entry
	Filter(st string) []discovery.Entry
}

// Config holds the server configuration
type Config struct {
	Listen string // host:port; ":0" picks a free port

	// Entries backs GET /entries. Required.
	Entries EntrySource

	// Search backs POST /search. Nil disables the endpoint.
	Search func(mx int, st string)

	// Clock stamps events. Nil means the wall clock.
	Now func() time.Time
}

// Server exposes a discovery Service over HTTP and WebSocket. It is itself a
// discovery.Listener: every message sent or received is pushed to /events
// subscribers.
type Server struct {
	cfg      Config
	log      *zap.Logger
	hub      *hub
	metrics  *metrics
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	httpSrv  *http.Server
	wg       sync.WaitGroup
}

// New creates a new Server instance
func New(cfg Config) (*Server, error) {
	if cfg.Entries == nil {
		return nil, errors.New("server: an entry source is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		cfg: cfg,
		log: logging.Named("server"),
		hub: newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local tooling only; any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.metrics = newMetrics(s)
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Listen binds the configured address. Start calls it when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start serves until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.log.Info("Reporting server listening",
		zap.String("addr", s.Addr().String()),
		zap.Bool("search_enabled", s.cfg.Search != nil),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpSrv.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutdown requested, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)

	// Hijacked WebSocket connections are not tracked by http.Server.
	s.hub.closeAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("All connections closed gracefully")
	case <-ctx.Done():
		s.log.Warn("Shutdown timeout, forcing close")
	}

	return err
}

// Subscribers returns the number of connected /events clients.
func (s *Server) Subscribers() int {
	return s.hub.len()
}

// OnSend implements discovery.Listener.
func (s *Server) OnSend(_ *discovery.Service, msg protocol.Message) {
	s.metrics.observe(DirectionSent, msg)
	s.publish(DirectionSent, msg)
}

// OnReceive implements discovery.Listener.
func (s *Server) OnReceive(_ *discovery.Service, msg protocol.Message) {
	s.metrics.observe(DirectionReceived, msg)
	s.publish(DirectionReceived, msg)
}
