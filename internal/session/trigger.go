package session

import (
	"sync"
	"time"
)

// DefaultCooldown is how long the trigger ignores utterances after a cycle.
const DefaultCooldown = 1750 * time.Millisecond

// TriggerState is a state of the voice-trigger machine.
type TriggerState int

const (
	Idle TriggerState = iota
	Processing
	Cooldown
)

func (s TriggerState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Processing:
		return "processing"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Trigger gates lookup cycles: Idle -> Processing -> Cooldown -> Idle.
// Utterances arriving outside Idle are dropped, never queued. Cooldown
// expires lazily on the next observation.
type Trigger struct {
	mu            sync.Mutex
	state         TriggerState
	cooldown      time.Duration
	cooldownUntil time.Time
	now           func() time.Time
}

// NewTrigger creates an idle trigger. Zero cooldown uses DefaultCooldown.
func NewTrigger(cooldown time.Duration, now func() time.Time) *Trigger {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &Trigger{cooldown: cooldown, now: now}
}

// TryBegin moves Idle to Processing and reports whether a cycle may start.
func (t *Trigger) TryBegin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expire()
	if t.state != Idle {
		return false
	}
	t.state = Processing
	return true
}

// Complete ends the in-flight cycle and starts the cooldown window.
// It is a no-op unless the machine is Processing.
func (t *Trigger) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Processing {
		return
	}
	t.state = Cooldown
	t.cooldownUntil = t.now().Add(t.cooldown)
}

// State returns the current state.
func (t *Trigger) State() TriggerState {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expire()
	return t.state
}

// expire must be called with mu held.
func (t *Trigger) expire() {
	if t.state == Cooldown && !t.now().Before(t.cooldownUntil) {
		t.state = Idle
	}
}
