package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muurk/ssdp/internal/logging"
	"github.com/muurk/ssdp/internal/protocol"
)

const (
	// DefaultReadTimeout bounds each blocking read so Stop is observed promptly.
	DefaultReadTimeout = time.Second

	// DefaultTTL is the multicast hop limit recommended by UPnP 1.1.
	DefaultTTL = 2

	// DefaultMX is the M-SEARCH wait used by periodic searches.
	DefaultMX = 3

	// ShutdownTimeout bounds how long Stop waits for running task bodies.
	ShutdownTimeout = 5 * time.Second
)

// State is the lifecycle phase of a Service.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config holds the engine settings.
type Config struct {
	// Interface to join the group on; empty joins all multicast interfaces
	Interface string

	// TTL is the multicast hop limit
	TTL int

	// Port overrides the SSDP port (tests only; 0 means 1900)
	Port int

	// ReadTimeout is the receive deadline granularity
	ReadTimeout time.Duration

	// Workers bounds concurrently running scheduled tasks
	Workers int

	// Product is sent as USER-AGENT on searches and SERVER on announcements
	Product string

	// Clock stamps received messages and drives scheduled tasks; nil means wall clock
	Clock clock.Clock
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		TTL:         DefaultTTL,
		ReadTimeout: DefaultReadTimeout,
		Workers:     DefaultWorkers,
	}
}

// Service owns one SSDP socket. It runs the receive loop, fans messages out
// to listeners and hosts the scheduled work listeners install.
type Service struct {
	cfg       Config
	transport Transport
	scheduler *Scheduler
	clock     clock.Clock
	log       *zap.Logger

	state     atomic.Int32
	listeners atomic.Pointer[listenerSet]

	// mu serializes listener registration; delivery never takes it
	mu            sync.Mutex
	registrations map[Listener][]*Task

	loop       sync.WaitGroup
	stopOnce   sync.Once
	stopErr    error
	terminated chan struct{}
}

// New opens the multicast socket described by cfg.
func New(cfg Config) (*Service, error) {
	cfg = withDefaults(cfg)

	t, err := NewUDPTransport(TransportOptions{
		Interface: cfg.Interface,
		TTL:       cfg.TTL,
		Port:      cfg.Port,
	})
	if err != nil {
		return nil, err
	}
	return NewWithTransport(cfg, t), nil
}

// NewWithTransport builds a service on an existing transport.
func NewWithTransport(cfg Config, t Transport) *Service {
	cfg = withDefaults(cfg)

	s := &Service{
		cfg:           cfg,
		transport:     t,
		scheduler:     NewScheduler(cfg.Clock, cfg.Workers),
		clock:         cfg.Clock,
		log:           logging.Named("discovery"),
		registrations: make(map[Listener][]*Task),
		terminated:    make(chan struct{}),
	}
	empty := listenerSet{}
	s.listeners.Store(&empty)
	return s
}

func withDefaults(cfg Config) Config {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return cfg
}

// State returns the current lifecycle phase.
func (s *Service) State() State { return State(s.state.Load()) }

// Clock returns the service time source.
func (s *Service) Clock() clock.Clock { return s.clock }

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Transport returns the underlying socket abstraction.
func (s *Service) Transport() Transport { return s.transport }

// Start launches the receive loop.
func (s *Service) Start() error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return fmt.Errorf("cannot start service in state %s", s.State())
	}

	s.log.Info("SSDP service started", zap.String("group", addrString(s.transport.Group())))

	s.loop.Add(1)
	go s.receiveLoop()
	return nil
}

func (s *Service) receiveLoop() {
	defer s.loop.Done()

	for s.State() == StateRunning {
		// Socket deadlines are wall-clock regardless of the injected clock.
		packet, from, err := s.transport.Receive(time.Now().Add(s.cfg.ReadTimeout))
		if err != nil {
			if IsTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) || s.State() != StateRunning {
				return
			}
			s.log.Warn("Receive failed", zap.Error(err))
			continue
		}

		logging.LogDatagram("received", from, packet)

		msg, err := protocol.ParseDatagram(packet, from, s.clock.Now())
		if err != nil {
			s.log.Debug("Dropped malformed datagram",
				zap.String("remote_addr", addrString(from)),
				zap.Error(err),
			)
			logging.LogRawBytes("Malformed datagram", packet)
			continue
		}

		logging.LogMessage("received", msg.StartLine(), protocol.URIString(msg.USN()), protocol.URIString(msg.NT()))
		s.dispatch(msg, false)
	}
}

// Send notifies listeners and multicasts msg. Socket errors are logged and
// dropped; periodic re-announcement covers lost datagrams.
func (s *Service) Send(msg protocol.Message) {
	s.SendTo(msg, s.transport.Group())
}

// SendTo notifies listeners and writes msg to a single address.
func (s *Service) SendTo(msg protocol.Message, addr net.Addr) {
	if s.State() == StateTerminated {
		s.log.Debug("Dropped send on terminated service", zap.String("start_line", msg.StartLine()))
		return
	}

	s.dispatch(msg, true)

	packet := msg.Encode()
	logging.LogDatagram("sent", addr, packet)

	if err := s.transport.Send(packet, addr); err != nil {
		s.log.Warn("Send failed",
			zap.String("start_line", msg.StartLine()),
			zap.String("remote_addr", addrString(addr)),
			zap.Error(err),
		)
	}
}

// MSearch multicasts one search request.
func (s *Service) MSearch(mx int, st string) {
	req := protocol.NewMSearch(mx, st)
	if s.cfg.Product != "" {
		req.Header.Set(protocol.HeaderUserAgent, s.cfg.Product)
	}
	s.Send(req)
}

// Discover sends an ssdp:all search now and then every interval.
func (s *Service) Discover(interval time.Duration) (*Task, error) {
	s.MSearch(DefaultMX, protocol.SearchAll)
	return s.Schedule("discover", interval, func() {
		s.MSearch(DefaultMX, protocol.SearchAll)
	})
}

// Schedule runs fn at a fixed rate on the service scheduler. The task is
// cancelled by Stop if not before.
func (s *Service) Schedule(name string, period time.Duration, fn func()) (*Task, error) {
	return s.scheduler.Every(name, period, fn)
}

// ScheduleOnce runs fn once after delay.
func (s *Service) ScheduleOnce(name string, delay time.Duration, fn func()) (*Task, error) {
	return s.scheduler.After(name, delay, fn)
}

// AddListener attaches l. Registrants get OnRegister; hooks must not call
// AddListener or RemoveListener themselves.
func (s *Service) AddListener(l Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st == StateStopping || st == StateTerminated {
		return ErrServiceStopped
	}

	current := *s.listeners.Load()
	next := current.with(l)
	if len(next) == len(current) {
		return nil
	}
	s.listeners.Store(&next)

	if r, ok := l.(Registrant); ok {
		s.registrations[l] = s.register(r)
	}
	return nil
}

// RemoveListener detaches l and hands its tasks back to OnUnregister. It
// reports whether l was attached.
func (s *Service) RemoveListener(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detach(l)
}

func (s *Service) detach(l Listener) bool {
	next, ok := s.listeners.Load().without(l)
	if !ok {
		return false
	}
	s.listeners.Store(&next)

	if r, isReg := l.(Registrant); isReg {
		tasks := s.registrations[l]
		delete(s.registrations, l)
		s.unregister(r, tasks)
	}
	return true
}

func (s *Service) register(r Registrant) (tasks []*Task) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("Listener panicked in OnRegister", zap.Any("panic", p))
		}
	}()
	return r.OnRegister(s)
}

func (s *Service) unregister(r Registrant, tasks []*Task) {
	defer CancelAll(tasks)
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("Listener panicked in OnUnregister", zap.Any("panic", p))
		}
	}()
	r.OnUnregister(s, tasks)
}

// Listeners returns the current listener snapshot.
func (s *Service) Listeners() []Listener {
	ls := *s.listeners.Load()
	out := make([]Listener, len(ls))
	copy(out, ls)
	return out
}

func (s *Service) dispatch(msg protocol.Message, sending bool) {
	for _, l := range *s.listeners.Load() {
		s.deliver(l, msg, sending)
	}
}

// deliver isolates one listener callback so a panic reaches neither the
// other listeners nor the receive loop.
func (s *Service) deliver(l Listener, msg protocol.Message, sending bool) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("Listener panicked",
				zap.String("listener", fmt.Sprintf("%T", l)),
				zap.Bool("sending", sending),
				zap.Any("panic", p),
			)
		}
	}()

	if sending {
		l.OnSend(s, msg)
	} else {
		l.OnReceive(s, msg)
	}
}

// Stop detaches every listener, cancels scheduled tasks, closes the socket
// and waits for the receive loop. It is safe to call more than once.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateStopping)))
		s.log.Info("SSDP service stopping", zap.Stringer("from", prev))

		s.mu.Lock()
		for _, l := range *s.listeners.Load() {
			s.detach(l)
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		var err error
		err = multierr.Append(err, s.scheduler.Shutdown(ctx))
		err = multierr.Append(err, s.transport.Close())

		s.loop.Wait()

		s.state.Store(int32(StateTerminated))
		close(s.terminated)
		s.stopErr = err

		s.log.Info("SSDP service terminated")
	})
	return s.stopErr
}

// AwaitTermination blocks until Stop has finished or ctx is done.
func (s *Service) AwaitTermination(ctx context.Context) error {
	select {
	case <-s.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminated is closed once the service reaches StateTerminated.
func (s *Service) Terminated() <-chan struct{} { return s.terminated }

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
