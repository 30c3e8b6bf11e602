package discovery

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/ssdp/internal/device"
	"github.com/muurk/ssdp/internal/logging"
	"github.com/muurk/ssdp/internal/protocol"
)

// DefaultMaxAge is the advertised lifetime of announcements.
const DefaultMaxAge = 1800 * time.Second

// Search answering limits. Searches beyond the burst are ignored until the
// bucket refills.
const (
	DefaultSearchRate  = 20 // searches per second
	DefaultSearchBurst = 40
)

// AnnouncerConfig holds device-mode settings.
type AnnouncerConfig struct {
	// MaxAge is sent in CACHE-CONTROL; re-announcement runs at half of it
	MaxAge time.Duration

	// Product is sent in the SERVER header when non-empty
	Product string

	// BootID and ConfigID are sent as BOOTID.UPNP.ORG / CONFIGID.UPNP.ORG
	// when BootID is positive
	BootID   int
	ConfigID int

	// SearchRate and SearchBurst bound how many M-SEARCH requests are
	// answered. Zero means the defaults.
	SearchRate  rate.Limit
	SearchBurst int
}

// Announcer advertises a local device tree. It is a Registrant: attached
// to a Service it announces alive, re-announces before max-age elapses,
// answers matching searches and says byebye when detached.
type Announcer struct {
	root device.Node
	usns *device.USNMap
	cfg  AnnouncerConfig
	log  *zap.Logger

	limiter *rate.Limiter

	// jitter picks the response delay within [0, max)
	jitter func(max time.Duration) time.Duration
}

// NewAnnouncer prepares the notification identities of root.
func NewAnnouncer(root device.Node, cfg AnnouncerConfig) *Announcer {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.SearchRate <= 0 {
		cfg.SearchRate = DefaultSearchRate
	}
	if cfg.SearchBurst <= 0 {
		cfg.SearchBurst = DefaultSearchBurst
	}

	var usns *device.USNMap
	if memo, ok := root.(interface{ USNMap() *device.USNMap }); ok {
		usns = memo.USNMap()
	} else {
		usns = device.BuildUSNMap(root)
	}

	return &Announcer{
		root:   root,
		usns:   usns,
		cfg:    cfg,
		log:    logging.Named("announcer"),
		jitter: randomDelay,

		limiter: rate.NewLimiter(cfg.SearchRate, cfg.SearchBurst),
	}
}

func randomDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Notify calls fn for every (NT, USN) pair of the device tree.
func (a *Announcer) Notify(fn func(nt, usn string)) {
	a.usns.Each(fn)
}

// Alive multicasts one ssdp:alive per notification pair.
func (a *Announcer) Alive(s *Service) {
	a.Notify(func(nt, usn string) {
		msg := protocol.NewAlive(nt, usn, a.root.Location(), a.cfg.MaxAge)
		a.decorate(&msg.Header)
		s.Send(msg)
	})
}

// ByeBye multicasts one ssdp:byebye per notification pair.
func (a *Announcer) ByeBye(s *Service) {
	a.Notify(func(nt, usn string) {
		msg := protocol.NewByeBye(nt, usn)
		a.decorate(&msg.Header)
		s.Send(msg)
	})
}

func (a *Announcer) decorate(h *protocol.Headers) {
	if a.cfg.Product != "" {
		h.Set(protocol.HeaderServer, a.cfg.Product)
	}
	if a.cfg.BootID > 0 {
		h.Set(protocol.HeaderBootID, strconv.Itoa(a.cfg.BootID))
		h.Set(protocol.HeaderConfigID, strconv.Itoa(a.cfg.ConfigID))
	}
}

// OnRegister announces the tree and schedules re-announcement at half the
// max-age.
func (a *Announcer) OnRegister(s *Service) []*Task {
	a.log.Info("Announcing device",
		zap.String("udn", a.root.UDN()),
		zap.String("type", a.root.DeviceType()),
		zap.Int("identities", a.usns.Len()),
	)
	a.Alive(s)

	task, err := s.Schedule("announce", a.cfg.MaxAge/2, func() { a.Alive(s) })
	if err != nil {
		a.log.Warn("Failed to schedule re-announcement", zap.Error(err))
		return nil
	}
	return []*Task{task}
}

// OnUnregister cancels re-announcement and withdraws the tree.
func (a *Announcer) OnUnregister(s *Service, tasks []*Task) {
	CancelAll(tasks)
	a.ByeBye(s)
}

// OnSend implements Listener.
func (a *Announcer) OnSend(*Service, protocol.Message) {}

// OnReceive answers M-SEARCH requests whose target matches one of the
// tree's notification types. Replies are unicast to the searcher after a
// random delay within MX.
func (a *Announcer) OnReceive(s *Service, msg protocol.Message) {
	if msg.Kind() != protocol.KindMSearch {
		return
	}
	if man := strings.Trim(msg.Headers().Value(protocol.HeaderMan), `" `); man != "" && man != strings.Trim(protocol.ManDiscover, `"`) {
		return
	}

	from := msg.RemoteAddr()
	if from == nil {
		return
	}

	st := strings.TrimSpace(msg.Headers().Value(protocol.HeaderST))
	pairs := a.usns.Matching(st)
	if len(pairs) == 0 {
		return
	}
	if !a.limiter.Allow() {
		a.log.Debug("Search rate exceeded, ignoring",
			zap.String("st", st),
			zap.String("remote_addr", from.String()),
		)
		return
	}

	var delay time.Duration
	if req, ok := msg.(*protocol.Request); ok {
		if mx, ok := req.MX(); ok {
			delay = a.jitter(time.Duration(mx) * time.Second)
		}
	}

	a.log.Debug("Answering search",
		zap.String("st", st),
		zap.String("remote_addr", from.String()),
		zap.Int("responses", len(pairs)),
		zap.Duration("delay", delay),
	)

	respond := func() {
		for _, p := range pairs {
			target := st
			if strings.EqualFold(st, protocol.SearchAll) {
				target = p.NT
			}
			resp := protocol.NewSearchResponse(target, p.USN, a.root.Location(), a.cfg.MaxAge)
			a.decorate(&resp.Header)
			s.SendTo(resp, from)
		}
	}

	if delay <= 0 {
		respond()
		return
	}
	if _, err := s.ScheduleOnce("search-response", delay, respond); err != nil {
		a.log.Debug("Dropped search response", zap.Error(err))
	}
}

// Pairs returns the advertised (NT, USN) pairs.
func (a *Announcer) Pairs() []device.Pair {
	return a.usns.Pairs()
}
