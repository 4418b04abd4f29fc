package quota

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTracker_WindowLimit(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(map[string]Limit{"gemini": {RequestsPerWindow: 3, Window: time.Minute}}, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		granted, wait := tr.Reserve("gemini")
		require.True(t, granted, "call %d should be granted", i+1)
		assert.Zero(t, wait)
	}

	granted, wait := tr.Reserve("gemini")
	assert.False(t, granted)
	assert.Equal(t, time.Minute, wait)
	assert.False(t, tr.Available("gemini"))

	clock.Advance(time.Minute)
	granted, _ = tr.Reserve("gemini")
	assert.True(t, granted, "new window should reset the count")
}

func TestTracker_MinGap(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(map[string]Limit{"groq": {RequestsPerWindow: 100, Window: time.Minute, MinGap: 5 * time.Second}}, WithClock(clock.Now))

	granted, _ := tr.Reserve("groq")
	require.True(t, granted)

	clock.Advance(2 * time.Second)
	granted, wait := tr.Reserve("groq")
	assert.False(t, granted)
	assert.Equal(t, 3*time.Second, wait)

	clock.Advance(3 * time.Second)
	granted, _ = tr.Reserve("groq")
	assert.True(t, granted)
}

func TestTracker_ReleaseReturnsSlot(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(map[string]Limit{"openai": {RequestsPerWindow: 1, Window: time.Minute, MinGap: time.Second}}, WithClock(clock.Now))

	granted, _ := tr.Reserve("openai")
	require.True(t, granted)
	tr.Release("openai")

	granted, _ = tr.Reserve("openai")
	assert.True(t, granted, "released slot should be reusable without waiting for the gap")
}

func TestTracker_QuotaCooldownBacksOff(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(map[string]Limit{"gemini": {RequestsPerWindow: 100, Window: time.Minute}},
		WithClock(clock.Now), WithCooldown(time.Second, 3*time.Second))

	tr.RecordResult("gemini", Result{Kind: ResultQuotaExceeded})
	granted, wait := tr.Reserve("gemini")
	assert.False(t, granted)
	assert.Equal(t, time.Second, wait)

	clock.Advance(time.Second)
	tr.RecordResult("gemini", Result{Kind: ResultQuotaExceeded})
	_, wait = tr.Reserve("gemini")
	assert.Equal(t, 2*time.Second, wait)

	clock.Advance(2 * time.Second)
	tr.RecordResult("gemini", Result{Kind: ResultQuotaExceeded})
	_, wait = tr.Reserve("gemini")
	assert.Equal(t, 3*time.Second, wait, "cooldown is capped")

	clock.Advance(3 * time.Second)
	tr.RecordResult("gemini", Result{Kind: ResultSuccess})
	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Zero(t, snap[0].ConsecutiveQuotaErrors)
}

func TestTracker_RetryAfterHintWins(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(nil, WithClock(clock.Now))

	tr.RecordResult("anthropic", Result{Kind: ResultQuotaExceeded, RetryAfter: 42 * time.Second})
	granted, wait := tr.Reserve("anthropic")
	assert.False(t, granted)
	assert.Equal(t, 42*time.Second, wait)
}

func TestTracker_UnavailableUsesMaxCooldown(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker(nil, WithClock(clock.Now), WithCooldown(time.Second, time.Hour))

	tr.RecordResult("groq", Result{Kind: ResultUnavailable})
	_, wait := tr.Reserve("groq")
	assert.Equal(t, time.Hour, wait)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Zero(t, snap[0].ConsecutiveQuotaErrors)
}

func TestTracker_SnapshotRestore(t *testing.T) {
	clock := newFakeClock()
	limits := map[string]Limit{
		"gemini": {RequestsPerWindow: 2, Window: time.Minute},
		"groq":   {RequestsPerWindow: 5, Window: time.Minute},
	}
	tr := NewTracker(limits, WithClock(clock.Now))
	tr.Reserve("gemini")
	tr.Reserve("gemini")
	tr.RecordResult("groq", Result{Kind: ResultQuotaExceeded, RetryAfter: 30 * time.Second})

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "gemini", snap[0].ProviderName)
	assert.Equal(t, 2, snap[0].CallsInWindow)
	assert.Equal(t, 60, snap[0].WindowSeconds)
	require.NotNil(t, snap[1].CooldownUntil)

	restored := NewTracker(limits, WithClock(clock.Now))
	restored.Restore(snap)

	granted, _ := restored.Reserve("gemini")
	assert.False(t, granted, "restored window is full")
	granted, wait := restored.Reserve("groq")
	assert.False(t, granted, "restored cooldown still applies")
	assert.Equal(t, 30*time.Second, wait)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("QUOTA_GEMINI_RPM", "7")
	t.Setenv("QUOTA_GEMINI_MIN_GAP", "2s")
	t.Setenv("QUOTA_GROQ_RPM", "not-a-number")

	limits := map[string]Limit{
		"gemini": {RequestsPerWindow: 15, Window: time.Minute},
		"groq":   {RequestsPerWindow: 30, Window: time.Minute},
	}
	ApplyEnvOverrides(limits)

	assert.Equal(t, 7, limits["gemini"].RequestsPerWindow)
	assert.Equal(t, 2*time.Second, limits["gemini"].MinGap)
	assert.Equal(t, 30, limits["groq"].RequestsPerWindow)
}
