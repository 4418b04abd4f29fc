// Package quota tracks per-provider request windows and cooldowns so the
// gateway can decide whether a provider may be called right now.
package quota

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jonathan/b2b-content-agent/internal/types"
)

// Limit is the rate-limit configuration for a single provider.
type Limit struct {
	RequestsPerWindow int           // Maximum calls per window
	Window            time.Duration // Window length
	MinGap            time.Duration // Minimum spacing between consecutive calls (0 disables)
}

// DefaultLimit applies to providers that were not configured explicitly.
var DefaultLimit = Limit{RequestsPerWindow: 50, Window: time.Minute}

// ResultKind classifies the outcome of a call for quota bookkeeping.
type ResultKind int

const (
	// ResultSuccess clears the consecutive quota error streak.
	ResultSuccess ResultKind = iota
	// ResultQuotaExceeded starts or extends a cooldown.
	ResultQuotaExceeded
	// ResultUnavailable puts the provider in cooldown for RetryAfter without
	// counting toward the quota error streak (used for auth failures).
	ResultUnavailable
	// ResultFailure leaves quota state untouched.
	ResultFailure
)

// Result is reported back to the tracker after each call.
type Result struct {
	Kind       ResultKind
	RetryAfter time.Duration // Provider hint; zero means use exponential cooldown
}

// Tracker holds quota state for every provider. It is safe for concurrent use.
type Tracker struct {
	mu              sync.Mutex
	providers       map[string]*providerState
	now             func() time.Time
	initialCooldown time.Duration
	maxCooldown     time.Duration
}

type providerState struct {
	limit            Limit
	windowStart      time.Time
	calls            int
	lastCall         time.Time
	prevLastCall     time.Time
	cooldownUntil    time.Time
	consecutiveQuota int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithCooldown sets the first cooldown applied after a quota error and the cap
// the exponential cooldown grows to.
func WithCooldown(initial, max time.Duration) Option {
	return func(t *Tracker) {
		t.initialCooldown = initial
		t.maxCooldown = max
	}
}

// NewTracker creates a tracker for the given provider limits.
func NewTracker(limits map[string]Limit, opts ...Option) *Tracker {
	t := &Tracker{
		providers:       make(map[string]*providerState, len(limits)),
		now:             time.Now,
		initialCooldown: 3 * time.Second,
		maxCooldown:     5 * time.Minute,
	}
	for _, opt := range opts {
		opt(t)
	}
	for name, limit := range limits {
		t.providers[name] = &providerState{limit: normalize(limit)}
	}
	return t
}

func normalize(l Limit) Limit {
	if l.RequestsPerWindow < 1 {
		l.RequestsPerWindow = DefaultLimit.RequestsPerWindow
	}
	if l.Window <= 0 {
		l.Window = DefaultLimit.Window
	}
	if l.MinGap < 0 {
		l.MinGap = 0
	}
	return l
}

// state returns the provider state, registering the default limit for
// providers seen for the first time. Caller must hold t.mu.
func (t *Tracker) state(provider string) *providerState {
	ps, ok := t.providers[provider]
	if !ok {
		ps = &providerState{limit: DefaultLimit}
		t.providers[provider] = ps
	}
	return ps
}

// Reserve asks for permission to make one call to provider. When granted, the
// call is counted against the current window. When refused, wait is the
// earliest time after which asking again could succeed.
func (t *Tracker) Reserve(provider string) (granted bool, wait time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	ps := t.state(provider)

	if now.Before(ps.cooldownUntil) {
		return false, ps.cooldownUntil.Sub(now)
	}

	if ps.windowStart.IsZero() || !now.Before(ps.windowStart.Add(ps.limit.Window)) {
		ps.windowStart = now
		ps.calls = 0
	}

	if ps.calls >= ps.limit.RequestsPerWindow {
		return false, ps.windowStart.Add(ps.limit.Window).Sub(now)
	}

	if ps.limit.MinGap > 0 && !ps.lastCall.IsZero() {
		if since := now.Sub(ps.lastCall); since < ps.limit.MinGap {
			return false, ps.limit.MinGap - since
		}
	}

	ps.calls++
	ps.prevLastCall = ps.lastCall
	ps.lastCall = now
	return true, 0
}

// Release returns a slot granted by Reserve when the call was never made.
func (t *Tracker) Release(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.state(provider)
	if ps.calls > 0 {
		ps.calls--
	}
	ps.lastCall = ps.prevLastCall
}

// RecordResult updates cooldown state after a call to provider completes.
func (t *Tracker) RecordResult(provider string, r Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	ps := t.state(provider)

	switch r.Kind {
	case ResultSuccess:
		ps.consecutiveQuota = 0
	case ResultQuotaExceeded:
		ps.consecutiveQuota++
		cooldown := r.RetryAfter
		if cooldown <= 0 {
			cooldown = t.backoff(ps.consecutiveQuota)
		}
		ps.cooldownUntil = now.Add(cooldown)
		log.Printf("[QUOTA] %s quota exceeded (%d in a row), cooling down for %s", provider, ps.consecutiveQuota, cooldown)
	case ResultUnavailable:
		cooldown := r.RetryAfter
		if cooldown <= 0 {
			cooldown = t.maxCooldown
		}
		ps.cooldownUntil = now.Add(cooldown)
		log.Printf("[QUOTA] %s unavailable, cooling down for %s", provider, cooldown)
	}
}

func (t *Tracker) backoff(streak int) time.Duration {
	d := t.initialCooldown
	for i := 1; i < streak; i++ {
		d *= 2
		if d >= t.maxCooldown {
			return t.maxCooldown
		}
	}
	if d > t.maxCooldown {
		return t.maxCooldown
	}
	return d
}

// Available reports whether provider could be reserved right now without
// consuming a slot.
func (t *Tracker) Available(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	ps := t.state(provider)
	if now.Before(ps.cooldownUntil) {
		return false
	}
	if !ps.windowStart.IsZero() && now.Before(ps.windowStart.Add(ps.limit.Window)) && ps.calls >= ps.limit.RequestsPerWindow {
		return false
	}
	return true
}

// Snapshot returns the persisted view of every provider, sorted by name.
func (t *Tracker) Snapshot() []types.ProviderQuota {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.ProviderQuota, 0, len(t.providers))
	for name, ps := range t.providers {
		q := types.ProviderQuota{
			ProviderName:           name,
			WindowLimit:            ps.limit.RequestsPerWindow,
			WindowSeconds:          int(ps.limit.Window / time.Second),
			WindowStart:            ps.windowStart,
			CallsInWindow:          ps.calls,
			ConsecutiveQuotaErrors: ps.consecutiveQuota,
		}
		if q.WindowSeconds < 1 {
			q.WindowSeconds = 1
		}
		if !ps.cooldownUntil.IsZero() {
			until := ps.cooldownUntil
			q.CooldownUntil = &until
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderName < out[j].ProviderName })
	return out
}

// Restore loads window and cooldown state from a snapshot. Configured limits
// are kept; only counters and cooldowns are taken from the snapshot.
func (t *Tracker) Restore(quotas []types.ProviderQuota) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, q := range quotas {
		ps := t.state(q.ProviderName)
		ps.windowStart = q.WindowStart
		ps.calls = q.CallsInWindow
		ps.consecutiveQuota = q.ConsecutiveQuotaErrors
		ps.cooldownUntil = time.Time{}
		if q.CooldownUntil != nil {
			ps.cooldownUntil = *q.CooldownUntil
		}
	}
}
