// Package limiter guards how often a caller may invoke escalation actions
// (mint/verify/dispute-style operations upstream of promotion). Windows are
// sliding: each actor+action key maps to a time-ordered list of timestamps,
// pruned lazily on every check. The clock is injectable so tests are
// deterministic.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Result is the limiter's externally visible contract.
type Result struct {
	OK        bool  `json:"ok"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetMs   int64 `json:"reset_ms"`
	WindowMs  int64 `json:"window_ms"`
}

// Policy is the per-action window configuration.
type Policy struct {
	Limit  int           `json:"limit" yaml:"limit"`
	Window time.Duration `json:"window" yaml:"window"`
}

// DefaultEscalationPolicy is the production window for escalation actions.
func DefaultEscalationPolicy() Policy {
	return Policy{Limit: 10, Window: time.Minute}
}

// Store is the window state backend. The in-memory store suffices for a
// single node; the redis store shares windows across nodes.
type Store interface {
	// Take records an attempt under key at time now and reports the
	// window occupancy including this attempt, plus the timestamp of the
	// oldest surviving attempt (zero when the window was empty).
	Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (count int, oldest time.Time, err error)
}

// SlidingWindow is the concurrency-safe limiter front end.
type SlidingWindow struct {
	store  Store
	policy Policy
	clock  func() time.Time
}

// New creates a limiter over the given store.
func New(store Store, policy Policy) *SlidingWindow {
	return &SlidingWindow{store: store, policy: policy, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (l *SlidingWindow) WithClock(clock func() time.Time) *SlidingWindow {
	l.clock = clock
	return l
}

// Key builds the canonical actor+action key.
func Key(actor, action string) string {
	return fmt.Sprintf("%s:%s", actor, action)
}

// Allow checks and consumes one attempt for the key.
func (l *SlidingWindow) Allow(ctx context.Context, key string) (Result, error) {
	now := l.clock()
	count, oldest, err := l.store.Take(ctx, key, now, l.policy.Window, l.policy.Limit)
	if err != nil {
		// Fail closed: an unreachable store must not grant unlimited
		// escalation attempts.
		return Result{OK: false, Limit: l.policy.Limit, WindowMs: l.policy.Window.Milliseconds()}, err
	}

	res := Result{
		Limit:    l.policy.Limit,
		WindowMs: l.policy.Window.Milliseconds(),
	}
	res.OK = count <= l.policy.Limit
	if remaining := l.policy.Limit - count; remaining > 0 {
		res.Remaining = remaining
	}
	if !oldest.IsZero() {
		reset := oldest.Add(l.policy.Window).Sub(now).Milliseconds()
		if reset > 0 {
			res.ResetMs = reset
		}
	}
	return res, nil
}

// MemoryStore keeps per-key windows in a mutex-guarded map.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]time.Time)}
}

// Take implements Store. Expired timestamps are pruned lazily; when the
// window is already full the attempt is recorded as rejected and does not
// occupy a slot, so a saturated caller recovers as soon as old attempts age
// out rather than pushing its own reset forward.
func (s *MemoryStore) Take(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	count := len(kept) + 1
	if count <= limit {
		kept = append(kept, now)
	}
	s.windows[key] = kept

	var oldest time.Time
	if len(kept) > 0 {
		oldest = kept[0]
	}
	return count, oldest, nil
}
