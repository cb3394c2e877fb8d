package session

import (
	"context"
	"sync"
	"time"

	"github.com/breatheroute/airvoice/internal/airquality"
	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/location"
)

// Cache defaults.
const (
	DefaultRecentTTL           = 2 * time.Minute
	DefaultRefreshTTL          = 15 * time.Minute
	DefaultMoveThresholdMeters = 2000.0
)

// Tier is the staleness bucket of a cached reading.
type Tier int

const (
	// TierExpired means no usable entry; a fetch is required.
	TierExpired Tier = iota
	// TierRecent means the entry is reused verbatim.
	TierRecent
	// TierAging means the entry is reused with its age shown.
	TierAging
)

func (t Tier) String() string {
	switch t {
	case TierRecent:
		return "recent"
	case TierAging:
		return "aging"
	default:
		return "expired"
	}
}

// CacheConfig tunes the staleness tiers.
type CacheConfig struct {
	// RecentTTL bounds the Recent tier (default 2m).
	RecentTTL time.Duration

	// RefreshTTL bounds the Aging tier (default 15m).
	RefreshTTL time.Duration

	// MoveThresholdMeters expires an entry when the user has moved further
	// than this from where it was fetched (default 2km, negative disables).
	MoveThresholdMeters float64

	// Now returns the current time (default time.Now).
	Now func() time.Time
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.RecentTTL <= 0 {
		c.RecentTTL = DefaultRecentTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.RefreshTTL < c.RecentTTL {
		c.RefreshTTL = c.RecentTTL
	}
	if c.MoveThresholdMeters == 0 {
		c.MoveThresholdMeters = DefaultMoveThresholdMeters
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Entry is a reading cached together with the location it was fetched for,
// so a reused reading is always presented with its own place.
type Entry struct {
	Reading  *airquality.Reading
	Location location.Resolved
}

// Result is the outcome of a cache lookup. Tier is TierExpired when the
// entry was just fetched.
type Result struct {
	Entry Entry
	Tier  Tier
	Age   time.Duration
}

// Cache memoizes a session's last reading.
type Cache struct {
	cfg   CacheConfig
	mu    sync.Mutex
	entry *Entry
}

// NewCache creates an empty cache.
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{cfg: cfg.withDefaults()}
}

// Lookup returns the cached entry when it is still usable for loc, otherwise
// fetches a new reading. A failed fetch leaves the cache untouched.
func (c *Cache) Lookup(ctx context.Context, loc location.Resolved, fetcher airquality.Fetcher) (Result, error) {
	c.mu.Lock()
	entry := c.entry
	c.mu.Unlock()

	if entry != nil {
		tier, age := c.classify(entry, loc.Coordinate)
		if tier != TierExpired {
			return Result{Entry: *entry, Tier: tier, Age: age}, nil
		}
	}

	reading, err := fetcher.Fetch(ctx, loc.Coordinate)
	if err != nil {
		return Result{Tier: TierExpired}, err
	}

	fresh := &Entry{Reading: reading, Location: loc}
	c.mu.Lock()
	c.entry = fresh
	c.mu.Unlock()

	return Result{Entry: *fresh, Tier: TierExpired}, nil
}

// Peek reports the cached entry's tier and age for coord without fetching.
func (c *Cache) Peek(coord geo.Coordinate) (Entry, Tier, time.Duration, bool) {
	c.mu.Lock()
	entry := c.entry
	c.mu.Unlock()

	if entry == nil {
		return Entry{}, TierExpired, 0, false
	}
	tier, age := c.classify(entry, coord)
	return *entry, tier, age, true
}

// Age returns how old the cached reading is, if any.
func (c *Cache) Age() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry == nil {
		return 0, false
	}
	return c.age(c.entry), true
}

// Clear drops the cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

func (c *Cache) classify(entry *Entry, coord geo.Coordinate) (Tier, time.Duration) {
	age := c.age(entry)

	if c.cfg.MoveThresholdMeters > 0 && geo.IsValid(coord) &&
		geo.Distance(entry.Location.Coordinate, coord) > c.cfg.MoveThresholdMeters {
		return TierExpired, age
	}

	switch {
	case age <= c.cfg.RecentTTL:
		return TierRecent, age
	case age <= c.cfg.RefreshTTL:
		return TierAging, age
	default:
		return TierExpired, age
	}
}

func (c *Cache) age(entry *Entry) time.Duration {
	age := c.cfg.Now().Sub(entry.Reading.FetchedAt)
	if age < 0 {
		return 0
	}
	return age
}
