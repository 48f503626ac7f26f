package transport

import (
	"context"
	"sync"
	"time"

	"github.com/centroplan/vysync/pkg/logging"
)

// Quota describes the request budget of one external system. A zero
// ceiling disables the corresponding window.
type Quota struct {
	PerSecond int
	PerMinute int
	PerDay    int

	// MinDelay is the floor between consecutive requests.
	MinDelay time.Duration

	// AdaptiveDelay replaces MinDelay once the remaining budget in the
	// nearest window drops to LowWater or below, so the client eases off
	// instead of bursting into the ceiling.
	AdaptiveDelay time.Duration
	LowWater      int
}

// Limiter enforces a Quota over rolling second/minute/day windows.
// Counters are private to one client instance and reset on restart.
type Limiter struct {
	mu      sync.Mutex
	quota   Quota
	history []time.Time // timestamps of issued requests, oldest first
	last    time.Time

	// injectable for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a limiter for the given quota.
func NewLimiter(quota Quota) *Limiter {
	if quota.LowWater == 0 {
		quota.LowWater = 10
	}
	return &Limiter{
		quota: quota,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Wait blocks until issuing one request stays within every configured
// window, then records the request. It returns early if ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		now := l.now()
		l.prune(now)

		d := l.delay(ctx, now)
		if d <= 0 {
			l.last = now
			l.history = append(l.history, now)
			return nil
		}

		// Sleep outside the lock so concurrent callers queue on the
		// lock rather than stacking identical delays.
		l.mu.Unlock()
		err := l.sleep(ctx, d)
		l.mu.Lock()
		if err != nil {
			return err
		}
	}
}

// Remaining returns the unused budget in the nearest configured window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)

	remaining := -1
	consider := func(ceiling int, window time.Duration) {
		if ceiling <= 0 {
			return
		}
		r := ceiling - l.countSince(now.Add(-window))
		if remaining < 0 || r < remaining {
			remaining = r
		}
	}
	consider(l.quota.PerSecond, time.Second)
	consider(l.quota.PerMinute, time.Minute)
	consider(l.quota.PerDay, 24*time.Hour)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// delay computes the minimum safe pause before the next request.
func (l *Limiter) delay(ctx context.Context, now time.Time) time.Duration {
	var d time.Duration

	// Inter-request floor, adaptive when the budget runs low.
	if !l.last.IsZero() {
		min := l.quota.MinDelay
		if l.quota.AdaptiveDelay > 0 && l.lowestRemaining(now) <= l.quota.LowWater {
			min = l.quota.AdaptiveDelay
			logging.Ctx(ctx).Debug().
				Dur("delay", min).
				Msg("Rate limit budget low, switching to adaptive delay")
		}
		if elapsed := now.Sub(l.last); elapsed < min {
			d = min - elapsed
		}
	}

	// Hard window ceilings: wait for the oldest request in a full
	// window to roll out.
	until := func(ceiling int, window time.Duration) {
		if ceiling <= 0 {
			return
		}
		cutoff := now.Add(-window)
		inWindow := l.since(cutoff)
		if len(inWindow) >= ceiling {
			wait := inWindow[len(inWindow)-ceiling].Add(window).Sub(now)
			if wait > d {
				d = wait
			}
		}
	}
	until(l.quota.PerSecond, time.Second)
	until(l.quota.PerMinute, time.Minute)
	until(l.quota.PerDay, 24*time.Hour)

	return d
}

// lowestRemaining returns the tightest remaining budget across windows.
func (l *Limiter) lowestRemaining(now time.Time) int {
	remaining := int(^uint(0) >> 1)
	consider := func(ceiling int, window time.Duration) {
		if ceiling <= 0 {
			return
		}
		if r := ceiling - l.countSince(now.Add(-window)); r < remaining {
			remaining = r
		}
	}
	consider(l.quota.PerSecond, time.Second)
	consider(l.quota.PerMinute, time.Minute)
	consider(l.quota.PerDay, 24*time.Hour)
	return remaining
}

// prune drops history older than the widest window.
func (l *Limiter) prune(now time.Time) {
	window := 24 * time.Hour
	if l.quota.PerDay <= 0 {
		window = time.Minute
		if l.quota.PerMinute <= 0 {
			window = time.Second
		}
	}
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.history) && !l.history[i].After(cutoff) {
		i++
	}
	l.history = l.history[i:]
}

// since returns the history entries after the cutoff, oldest first.
func (l *Limiter) since(cutoff time.Time) []time.Time {
	i := 0
	for i < len(l.history) && !l.history[i].After(cutoff) {
		i++
	}
	return l.history[i:]
}

func (l *Limiter) countSince(cutoff time.Time) int {
	return len(l.since(cutoff))
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
