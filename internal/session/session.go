package session

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/airvoice/internal/airquality"
	"github.com/breatheroute/airvoice/internal/geo"
	"github.com/breatheroute/airvoice/internal/host"
	"github.com/breatheroute/airvoice/internal/location"
	"github.com/breatheroute/airvoice/internal/present"
	"github.com/breatheroute/airvoice/internal/telemetry"
)

const tracerName = "github.com/breatheroute/airvoice/internal/session"

// Cycle defaults.
const (
	DefaultCycleTimeout   = 9 * time.Second
	DefaultDisplayTimeout = 3 * time.Second
)

// Cycle reasons.
const (
	ReasonSessionStart = "session_start"
	ReasonVoice        = "voice"
)

// Resolver resolves a session's location.
type Resolver interface {
	Resolve(ctx context.Context, req location.Request) location.Resolved
}

// Config holds the collaborators and tuning shared by every session.
type Config struct {
	Resolver  Resolver
	Fetcher   airquality.Fetcher
	Display   host.Display
	Presenter *present.Presenter
	Matcher   *CommandMatcher

	// Cooldown is the trigger cooldown window (default 1.75s).
	Cooldown time.Duration

	// Cache tunes the staleness tiers.
	Cache CacheConfig

	// CycleTimeout bounds a whole lookup cycle (default 9s).
	CycleTimeout time.Duration

	// DisplayTimeout bounds the render call (default 3s).
	DisplayTimeout time.Duration

	Metrics *telemetry.LookupMetrics
	Tracer  trace.Tracer
	Logger  zerolog.Logger
	Now     func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Presenter == nil {
		c.Presenter = present.New(present.Config{})
	}
	if c.Matcher == nil {
		c.Matcher = NewCommandMatcher(nil)
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = DefaultCycleTimeout
	}
	if c.DisplayTimeout <= 0 {
		c.DisplayTimeout = DefaultDisplayTimeout
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Cache.Now == nil {
		c.Cache.Now = c.Now
	}
	return c
}

// Snapshot is a read-only view of a session for status endpoints.
type Snapshot struct {
	ID        string
	UserID    string
	StartedAt time.Time
	Trigger   TriggerState
	DeviceFix *location.Fix
	Cached    *Entry
	CacheTier Tier
	CacheAge  time.Duration
}

// Session is one host session. It owns its event subscriptions and state
// and runs at most one lookup cycle at a time.
type Session struct {
	id        string
	userID    string
	startedAt time.Time

	cfg   Config
	state *State
	hub   *host.Hub
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   []host.Subscription
	closed bool
	cycles sync.WaitGroup
}

// New creates a session. Start must be called to subscribe and run the
// initial cycle.
func New(start host.SessionStart, cfg Config) *Session {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        start.SessionID,
		userID:    start.UserID,
		startedAt: cfg.Now(),
		cfg:       cfg,
		state: NewState(
			NewTrigger(cfg.Cooldown, cfg.Now),
			NewCache(cfg.Cache),
			start.ClientIP,
		),
		hub:    host.NewHub(),
		log:    cfg.Logger.With().Str("session_id", start.SessionID).Str("user_id", start.UserID).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns the host session id.
func (s *Session) ID() string { return s.id }

// Hub returns the session's event bus.
func (s *Session) Hub() *host.Hub { return s.hub }

// State returns the session's state.
func (s *Session) State() *State { return s.state }

// Start subscribes to host events and runs the initial lookup cycle.
func (s *Session) Start() {
	s.mu.Lock()
	s.subs = append(s.subs,
		s.hub.OnTranscription(s.handleTranscription),
		s.hub.OnLocation(s.handleLocation),
	)
	s.mu.Unlock()

	s.log.Info().Msg("session started")

	if s.state.Trigger.TryBegin() {
		s.launch(ReasonSessionStart)
	}
}

// Close drops subscriptions, abandons in-flight work and waits for the
// running cycle to finish. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	s.cancel()
	s.cycles.Wait()

	s.log.Info().Dur("duration", s.cfg.Now().Sub(s.startedAt)).Msg("session ended")
}

// Wait blocks until no cycle is running.
func (s *Session) Wait() {
	s.cycles.Wait()
}

// Snapshot returns the session's current status.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		UserID:    s.userID,
		StartedAt: s.startedAt,
		Trigger:   s.state.Trigger.State(),
		DeviceFix: s.state.DeviceFix(),
	}

	var coord geo.Coordinate
	if snap.DeviceFix != nil {
		coord = snap.DeviceFix.Coordinate
	}
	if entry, tier, age, ok := s.state.Cache.Peek(coord); ok {
		snap.Cached = &entry
		snap.CacheTier = tier
		snap.CacheAge = age
	}
	return snap
}

func (s *Session) handleTranscription(event host.TranscriptionEvent) {
	if !s.cfg.Matcher.Matches(event.Text) {
		return
	}
	if !s.state.Trigger.TryBegin() {
		state := s.state.Trigger.State()
		s.cfg.Metrics.RecordIgnored(state.String())
		s.log.Debug().
			Str("trigger_state", state.String()).
			Bool("final", event.IsFinal).
			Msg("utterance ignored, cycle in flight or cooling down")
		return
	}
	s.launch(ReasonVoice)
}

// Location pushes only update state; they never start a cycle.
func (s *Session) handleLocation(event host.LocationEvent) {
	coord := event.Coordinate()
	if err := geo.Validate(coord); err != nil {
		s.log.Debug().Err(err).Msg("ignoring invalid device location")
		return
	}
	s.state.SetDeviceFix(location.Fix{Coordinate: coord, ReceivedAt: s.cfg.Now()})
}

func (s *Session) launch(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.state.Trigger.Complete()
		return
	}
	s.cycles.Add(1)
	s.mu.Unlock()

	go s.runCycle(reason)
}

func (s *Session) runCycle(reason string) {
	defer s.cycles.Done()

	start := s.cfg.Now()
	outcome := telemetry.OutcomePanic

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.CycleTimeout)
	defer cancel()

	ctx, span := s.cfg.Tracer.Start(ctx, "session.cycle",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.String("cycle.reason", reason),
		),
	)
	log := s.log.With().Str("reason", reason).Logger()
	ctx = log.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("lookup cycle panicked")
			span.SetStatus(codes.Error, "panic")
			s.present(ctx, present.Outcome{})
		}
		s.state.Trigger.Complete()

		span.SetAttributes(attribute.String("cycle.outcome", outcome))
		span.End()
		s.cfg.Metrics.RecordCycle(outcome, s.cfg.Now().Sub(start))
	}()

	result, err := s.lookup(ctx)
	outcome = telemetry.OutcomePresented
	if err != nil {
		outcome = telemetry.OutcomeUnavailable
		var timeoutErr *airquality.TimeoutError
		if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
			outcome = telemetry.OutcomeTimeout
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Msg("air quality lookup failed")
	}

	s.present(ctx, result)
}

// lookup resolves the location and fetches or reuses a reading. On error
// the returned outcome carries the location only.
func (s *Session) lookup(ctx context.Context) (present.Outcome, error) {
	span := trace.SpanFromContext(ctx)

	loc := s.cfg.Resolver.Resolve(ctx, s.state.resolveRequest())
	s.cfg.Metrics.RecordLocationSource(string(loc.Source))
	span.SetAttributes(attribute.String("location.source", string(loc.Source)))

	res, err := s.state.Cache.Lookup(ctx, loc, airquality.FetcherFunc(s.fetch))
	if err != nil {
		return present.Outcome{Location: loc}, err
	}

	s.cfg.Metrics.RecordCacheTier(res.Tier.String())
	span.SetAttributes(
		attribute.String("cache.tier", res.Tier.String()),
		attribute.Int("aqi.index", res.Entry.Reading.Index),
	)
	zerolog.Ctx(ctx).Info().
		Str("location_source", string(res.Entry.Location.Source)).
		Str("cache_tier", res.Tier.String()).
		Int("aqi", res.Entry.Reading.Index).
		Str("station", res.Entry.Reading.StationName).
		Msg("air quality lookup complete")

	return present.Outcome{
		Location:  res.Entry.Location,
		Reading:   res.Entry.Reading,
		Staleness: staleness(res.Tier),
		Age:       res.Age,
	}, nil
}

func (s *Session) fetch(ctx context.Context, coord geo.Coordinate) (*airquality.Reading, error) {
	if s.cfg.Fetcher == nil {
		return nil, &airquality.ProviderError{Provider: "none", Reason: "no fetcher configured"}
	}
	start := time.Now()
	reading, err := s.cfg.Fetcher.Fetch(ctx, coord)
	provider := "unknown"
	if reading != nil {
		provider = reading.Provider
	} else {
		var pe *airquality.ProviderError
		var te *airquality.TimeoutError
		switch {
		case errors.As(err, &pe):
			provider = pe.Provider
		case errors.As(err, &te):
			provider = te.Provider
		}
	}
	s.cfg.Metrics.RecordProviderRequest(provider, time.Since(start), err)
	return reading, err
}

// present renders on a context detached from the cycle deadline.
func (s *Session) present(ctx context.Context, outcome present.Outcome) {
	if s.cfg.Display == nil {
		return
	}
	// An ended session has no display to render on.
	if s.ctx.Err() != nil {
		zerolog.Ctx(ctx).Debug().Msg("session closed, result not displayed")
		return
	}
	msg := s.cfg.Presenter.Format(outcome)

	displayCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DisplayTimeout)
	defer cancel()

	if err := s.cfg.Display.ShowText(displayCtx, s.id, msg.Text, msg.Duration); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to display result")
	}
}

func staleness(t Tier) present.Staleness {
	switch t {
	case TierRecent:
		return present.Repeated
	case TierAging:
		return present.Aged
	default:
		return present.Fresh
	}
}
