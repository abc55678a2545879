// Package timer derives the pickup-window countdown from an order's
// expira_en. Nothing about the countdown is persisted.
package timer

import (
	"context"
	"sync"
	"time"

	"reserva-backend/internal/domain"
)

const DefaultWarning = 15 * time.Second

type Snapshot struct {
	Active    bool          `json:"active"`
	Remaining time.Duration `json:"-"`
	RemainMS  int64         `json:"remainingMs"`
	Warn      bool          `json:"warn"`
	Expired   bool          `json:"expired"`
}

// Remaining is max(0, expiresAt - now).
func Remaining(expiresAt time.Time, now time.Time) time.Duration {
	r := expiresAt.Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// IsExpired is true only while the order still waits for the customer and
// its window has closed.
func IsExpired(o domain.Order, now time.Time) bool {
	if o.ExpiresAt == nil || o.Status != domain.OrderAwaitingConfirmation {
		return false
	}
	return Remaining(*o.ExpiresAt, now) == 0
}

// Timer is one viewing session of an order. The near-expiry warning fires at
// most once per Timer.
type Timer struct {
	mu        sync.Mutex
	expiresAt *time.Time
	status    domain.OrderStatus
	threshold time.Duration
	warned    bool
}

func New(o domain.Order, threshold time.Duration) *Timer {
	if threshold <= 0 {
		threshold = DefaultWarning
	}
	t := &Timer{threshold: threshold}
	t.reset(o)
	return t
}

// Reset points the timer at a new version of the order. The warning latch
// survives so a refreshed document does not re-fire it.
func (t *Timer) Reset(o domain.Order) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset(o)
}

func (t *Timer) reset(o domain.Order) {
	t.status = o.Status
	t.expiresAt = nil
	if o.ExpiresAt != nil {
		v := *o.ExpiresAt
		t.expiresAt = &v
	}
}

func (t *Timer) Tick(now time.Time) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expiresAt == nil {
		return Snapshot{}
	}
	rem := Remaining(*t.expiresAt, now)
	s := Snapshot{Active: true, Remaining: rem, RemainMS: rem.Milliseconds()}
	if rem > 0 && rem <= t.threshold && !t.warned {
		t.warned = true
		s.Warn = true
	}
	s.Expired = rem == 0 && t.status == domain.OrderAwaitingConfirmation
	return s
}

// Run ticks once immediately and then every interval until ctx is done.
func (t *Timer) Run(ctx context.Context, interval time.Duration, now func() time.Time, fn func(Snapshot)) {
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	fn(t.Tick(now()))
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			fn(t.Tick(now()))
		}
	}
}
