package discovery

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/muurk/ssdp/internal/logging"
	"github.com/muurk/ssdp/internal/protocol"
)

const (
	// DefaultExpirePeriod is how often the cache sweeps expired entries.
	DefaultExpirePeriod = 60 * time.Second

	// DefaultSearchPeriod is how often the cache issues a broad re-search.
	DefaultSearchPeriod = 300 * time.Second
)

// Entry is the most recent announcement seen for one USN.
type Entry struct {
	USN        string    `json:"usn"`
	Type       string    `json:"type"`
	Location   string    `json:"location,omitempty"`
	Server     string    `json:"server,omitempty"`
	Remote     string    `json:"remote,omitempty"`
	Kind       string    `json:"kind"`
	Seen       time.Time `json:"seen"`
	Expiration time.Time `json:"expiration"`

	Message protocol.Message `json:"-"`
}

// TTL returns the time left before the entry expires.
func (e Entry) TTL(now time.Time) time.Duration {
	return e.Expiration.Sub(now)
}

func newEntry(usn string, msg protocol.Message) *Entry {
	nt := msg.NT()
	if msg.Kind() == protocol.KindSearchResponse {
		nt = msg.ST()
	}
	return &Entry{
		USN:        usn,
		Type:       protocol.URIString(nt),
		Location:   protocol.URIString(msg.Location()),
		Server:     msg.Headers().Value(protocol.HeaderServer),
		Remote:     addrString(msg.RemoteAddr()),
		Kind:       msg.Kind().String(),
		Seen:       msg.Timestamp(),
		Expiration: msg.Expiration(),
		Message:    msg,
	}
}

// CacheConfig holds the cache's scheduling settings.
type CacheConfig struct {
	// ExpirePeriod is the sweep interval and the "expiring soon" horizon
	ExpirePeriod time.Duration

	// SearchPeriod is the broad re-search interval
	SearchPeriod time.Duration

	// MX is the wait sent with cache-triggered searches
	MX int
}

// DefaultCacheConfig returns the standard sweep and search periods.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ExpirePeriod: DefaultExpirePeriod,
		SearchPeriod: DefaultSearchPeriod,
		MX:           DefaultMX,
	}
}

// Cache keeps the latest live announcement per USN. It is a Registrant:
// attached to a Service it sweeps itself and keeps its view fresh with
// periodic searches.
type Cache struct {
	cfg   CacheConfig
	clock clock.Clock
	log   *zap.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewCache creates an empty cache. A nil clock uses the wall clock.
func NewCache(cfg CacheConfig, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.ExpirePeriod <= 0 {
		cfg.ExpirePeriod = DefaultExpirePeriod
	}
	if cfg.SearchPeriod <= 0 {
		cfg.SearchPeriod = DefaultSearchPeriod
	}
	if cfg.MX <= 0 {
		cfg.MX = DefaultMX
	}
	return &Cache{
		cfg:     cfg,
		clock:   clk,
		log:     logging.Named("cache"),
		entries: make(map[string]*Entry),
	}
}

// OnSend implements Listener.
func (c *Cache) OnSend(*Service, protocol.Message) {}

// OnReceive stores alive, update and search-response messages and drops
// entries announced as byebye.
func (c *Cache) OnReceive(_ *Service, msg protocol.Message) {
	switch msg.Kind() {
	case protocol.KindAlive, protocol.KindUpdate, protocol.KindSearchResponse:
		c.Update(msg)
	case protocol.KindByeBye:
		c.Remove(protocol.URIString(msg.USN()))
	}
}

// Update stores msg under its USN if its expiration is still in the
// future. It reports whether the entry was stored.
func (c *Cache) Update(msg protocol.Message) bool {
	usn := protocol.URIString(msg.USN())
	if usn == "" {
		return false
	}

	if !msg.Expiration().After(c.clock.Now()) {
		c.log.Debug("Ignoring expired announcement", zap.String("usn", usn))
		return false
	}

	entry := newEntry(usn, msg)

	c.mu.Lock()
	_, existed := c.entries[usn]
	c.entries[usn] = entry
	c.mu.Unlock()

	if !existed {
		c.log.Debug("Cached new entry",
			zap.String("usn", usn),
			zap.String("type", entry.Type),
			zap.Time("expires", entry.Expiration),
		)
	}
	return true
}

// Remove deletes the entry for usn, reporting whether it existed.
func (c *Cache) Remove(usn string) bool {
	if usn == "" {
		return false
	}

	c.mu.Lock()
	_, ok := c.entries[usn]
	delete(c.entries, usn)
	c.mu.Unlock()

	if ok {
		c.log.Debug("Removed entry", zap.String("usn", usn))
	}
	return ok
}

// Expire removes every entry whose expiration has passed. imminent is true
// when a remaining entry expires within one sweep period.
func (c *Cache) Expire() (removed []Entry, imminent bool) {
	now := c.clock.Now()
	horizon := now.Add(c.cfg.ExpirePeriod)

	c.mu.Lock()
	for usn, e := range c.entries {
		switch {
		case !e.Expiration.After(now):
			removed = append(removed, *e)
			delete(c.entries, usn)
		case !e.Expiration.After(horizon):
			imminent = true
		}
	}
	c.mu.Unlock()

	sortEntries(removed)
	return removed, imminent
}

// sweep runs Expire and searches when knowledge is going stale. The search
// is issued after the lock is released.
func (c *Cache) sweep(s *Service) {
	removed, imminent := c.Expire()
	if len(removed) == 0 && !imminent {
		return
	}

	c.log.Debug("Cache going stale, searching",
		zap.Int("removed", len(removed)),
		zap.Bool("imminent", imminent),
	)
	s.MSearch(c.cfg.MX, protocol.SearchAll)
}

// OnRegister schedules the sweeper and the periodic re-search.
func (c *Cache) OnRegister(s *Service) []*Task {
	var tasks []*Task

	expirer, err := s.Schedule("cache-expire", c.cfg.ExpirePeriod, func() { c.sweep(s) })
	if err != nil {
		c.log.Warn("Failed to schedule cache sweep", zap.Error(err))
	} else {
		tasks = append(tasks, expirer)
	}

	search, err := s.Schedule("cache-search", c.cfg.SearchPeriod, func() {
		s.MSearch(c.cfg.MX, protocol.SearchAll)
	})
	if err != nil {
		c.log.Warn("Failed to schedule cache search", zap.Error(err))
	} else {
		tasks = append(tasks, search)
	}

	return tasks
}

// OnUnregister cancels the cache's tasks. Entries are kept.
func (c *Cache) OnUnregister(_ *Service, tasks []*Task) {
	CancelAll(tasks)
}

// Get returns the entry for usn.
func (c *Cache) Get(usn string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[usn]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot ordered by USN.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.mu.RUnlock()

	sortEntries(out)
	return out
}

// Filter returns the entries whose type satisfies the search target st.
func (c *Cache) Filter(st string) []Entry {
	match := protocol.Matcher(st)
	var out []Entry
	for _, e := range c.Entries() {
		if match(e.Type) {
			out = append(out, e)
		}
	}
	return out
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return strings.Compare(entries[i].USN, entries[j].USN) < 0
	})
}
