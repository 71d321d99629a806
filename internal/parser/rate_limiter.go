package parser

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQuotaExhausted is returned once the daily call quota is spent; the
// caller skips the AI tier for the rest of the day.
var ErrQuotaExhausted = errors.New("daily ai quota exhausted")

// RateLimiter enforces a fixed minimum interval between language-model
// calls plus a per-day quota. Sleep-based: Wait blocks the single
// processing thread, which is fine at this system's volume.
type RateLimiter struct {
	mu         sync.Mutex
	interval   time.Duration
	dailyQuota int

	lastCall time.Time
	used     int
	day      time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRateLimiter(interval time.Duration, dailyQuota int) *RateLimiter {
	return &RateLimiter{
		interval:   interval,
		dailyQuota: dailyQuota,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Remaining reports how many calls are left today.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollDayLocked(r.now())
	return r.dailyQuota - r.used
}

// Wait blocks until a call is permitted, then consumes one quota unit.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	nowT := r.now()
	r.rollDayLocked(nowT)

	if r.dailyQuota > 0 && r.used >= r.dailyQuota {
		r.mu.Unlock()
		return ErrQuotaExhausted
	}

	var delay time.Duration
	if !r.lastCall.IsZero() {
		if elapsed := nowT.Sub(r.lastCall); elapsed < r.interval {
			delay = r.interval - elapsed
		}
	}
	r.mu.Unlock()

	if delay > 0 {
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.lastCall = r.now()
	r.used++
	r.mu.Unlock()
	return nil
}

func (r *RateLimiter) rollDayLocked(now time.Time) {
	today := now.Truncate(24 * time.Hour)
	if !today.Equal(r.day) {
		r.day = today
		r.used = 0
	}
}
