package ratelimit

import (
	"math"
	"sort"
	"sync"
	"time"

	"StockWatchdog/internal/domain/models"
)

// Budget configures one upstream API.
type Budget struct {
	Limit            int           // standard-priority admissions per window
	Window           time.Duration // trailing window length
	ReservedFraction float64       // extra headroom for high priority, as a fraction of Limit
	CriticalFraction float64       // extra headroom for critical priority
	BackoffBase      time.Duration
	BackoffMax       time.Duration

	// Optional short window checked alongside Window. BurstLimit is a hard
	// ceiling for every priority; 0 disables it. BurstWindow must not exceed Window.
	BurstLimit  int
	BurstWindow time.Duration
}

func DefaultBudget() Budget {
	return Budget{
		Limit:            100,
		Window:           time.Hour,
		ReservedFraction: 0.1,
		CriticalFraction: 0.2,
		BackoffBase:      time.Second,
		BackoffMax:       5 * time.Minute,
	}
}

func (b Budget) hasBurst() bool { return b.BurstLimit > 0 && b.BurstWindow > 0 }

// capacity is the in-window count below which p is still admitted.
func (b Budget) capacity(p models.Priority) int {
	switch p {
	case models.PriorityCritical:
		return b.Limit + headroom(b.Limit, b.CriticalFraction)
	case models.PriorityHigh:
		return b.Limit + headroom(b.Limit, b.ReservedFraction)
	default:
		return b.Limit
	}
}

func headroom(limit int, f float64) int {
	if f <= 0 {
		return 0
	}
	return int(math.Floor(float64(limit)*f + 1e-9))
}

type budget struct {
	cfg          Budget
	ts           []time.Time // admitted timestamps, ascending
	backoffUntil time.Time
	failures     int
}

// firstLive returns the index of the first timestamp still inside the window.
func (b *budget) firstLive(now time.Time) int {
	return b.firstSince(now.Add(-b.cfg.Window))
}

func (b *budget) firstSince(cutoff time.Time) int {
	return sort.Search(len(b.ts), func(i int) bool { return b.ts[i].After(cutoff) })
}

// inBurst counts admissions inside the burst window.
func (b *budget) inBurst(now time.Time) int {
	return len(b.ts) - b.firstSince(now.Add(-b.cfg.BurstWindow))
}

// Gate is the admission gate for outbound calls to upstream APIs. All
// accounting for an API happens under one mutex; no I/O is done while holding it.
type Gate struct {
	mu       sync.Mutex
	m        map[string]*budget
	defaults Budget
	budgets  map[string]Budget
	now      func() time.Time
}

type Option func(*Gate)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithBudget configures a specific API; others use the default budget.
func WithBudget(api string, b Budget) Option {
	return func(g *Gate) { g.budgets[api] = b }
}

func New(def Budget, opts ...Option) *Gate {
	g := &Gate{
		m:        make(map[string]*budget),
		defaults: def,
		budgets:  make(map[string]Budget),
		now:      time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gate) config(api string) Budget {
	if b, ok := g.budgets[api]; ok {
		return b
	}
	return g.defaults
}

// get must be called with g.mu held.
func (g *Gate) get(api string) *budget {
	b, ok := g.m[api]
	if !ok {
		b = &budget{cfg: g.config(api)}
		g.m[api] = b
	}
	return b
}

// Admit decides whether one request to api may go out now. On Allow the
// request is recorded before the lock is released; a denial changes nothing.
func (g *Gate) Admit(api string, p models.Priority) models.Decision {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.get(api)
	if now.Before(b.backoffUntil) {
		return models.Deny(models.DenyBackoff, b.backoffUntil.Sub(now))
	}

	// drop expired entries
	if i := b.firstLive(now); i > 0 {
		b.ts = append(b.ts[:0], b.ts[i:]...)
	}

	capacity := b.cfg.capacity(p)
	if capacity <= 0 {
		return models.Deny(models.DenyQuotaExceeded, b.cfg.Window)
	}
	if n := len(b.ts); n >= capacity {
		return models.Deny(models.DenyQuotaExceeded, b.ts[n-capacity].Add(b.cfg.Window).Sub(now))
	}
	if b.cfg.hasBurst() && b.inBurst(now) >= b.cfg.BurstLimit {
		n := len(b.ts)
		return models.Deny(models.DenyQuotaExceeded, b.ts[n-b.cfg.BurstLimit].Add(b.cfg.BurstWindow).Sub(now))
	}
	b.ts = append(b.ts, now)
	return models.Allow()
}

// RecordFailure starts or extends backoff for api and returns its duration.
// Callers decide which failures back off; the status here is informational.
func (g *Gate) RecordFailure(api string, status int) time.Duration {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.get(api)
	d := backoff(b.cfg.BackoffBase, b.cfg.BackoffMax, b.failures)
	b.backoffUntil = now.Add(d)
	b.failures++
	return d
}

// RecordSuccess clears failures and any active backoff for api.
func (g *Gate) RecordSuccess(api string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := g.get(api)
	b.failures = 0
	b.backoffUntil = time.Time{}
}

// Status returns a snapshot for api without creating or modifying its budget.
func (g *Gate) Status(api string) models.BudgetStatus {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.m[api]
	if !ok {
		b = &budget{cfg: g.config(api)}
	}
	return b.status(api, now)
}

// Snapshot returns the status of every API seen so far, sorted by name.
func (g *Gate) Snapshot() []models.BudgetStatus {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]models.BudgetStatus, 0, len(g.m))
	for api, b := range g.m {
		out = append(out, b.status(api, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].API < out[j].API })
	return out
}

func (b *budget) status(api string, now time.Time) models.BudgetStatus {
	n := len(b.ts) - b.firstLive(now)
	s := models.BudgetStatus{
		API:                 api,
		InWindow:            n,
		Limit:               b.cfg.Limit,
		Window:              b.cfg.Window,
		ConsecutiveFailures: b.failures,
	}
	if b.cfg.Limit > 0 {
		s.UsagePercent = float64(n) / float64(b.cfg.Limit) * 100
	}
	if b.cfg.hasBurst() {
		s.InBurst = b.inBurst(now)
		s.BurstLimit = b.cfg.BurstLimit
		s.BurstWindow = b.cfg.BurstWindow
	}
	if now.Before(b.backoffUntil) {
		s.BackoffRemaining = b.backoffUntil.Sub(now)
	}
	return s
}

// backoff returns min(base*2^failures, max) without overflowing.
func backoff(base, max time.Duration, failures int) time.Duration {
	d := base
	for i := 0; i < failures && d < max; i++ {
		d *= 2
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}
