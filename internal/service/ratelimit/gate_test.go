package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"StockWatchdog/internal/domain/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 10, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestAdmitQuotaScenario(t *testing.T) {
	clk := newClock()
	g := New(DefaultBudget(), WithClock(clk.Now))
	start := clk.Now()

	for i := 1; i <= 105; i++ {
		d := g.Admit("yahoo_finance", models.PriorityNormal)
		if i <= 100 && !d.Allowed {
			t.Fatalf("request %d denied: %+v", i, d)
		}
		if i > 100 {
			if d.Allowed || d.Reason != models.DenyQuotaExceeded {
				t.Fatalf("request %d: expected quota denial, got %+v", i, d)
			}
			// oldest entry was admitted at start
			if want := start.Add(time.Hour).Sub(clk.Now()); d.RetryAfter != want {
				t.Fatalf("request %d: retry after %v want %v", i, d.RetryAfter, want)
			}
		}
		clk.Advance(30 * time.Second)
	}
	if s := g.Status("yahoo_finance"); s.InWindow != 100 {
		t.Fatalf("denials consumed quota: %d in window", s.InWindow)
	}

	// window advances past the first admission
	clk.Advance(start.Add(time.Hour).Sub(clk.Now()))
	if d := g.Admit("yahoo_finance", models.PriorityNormal); !d.Allowed {
		t.Fatalf("expected admission once the oldest entry expired, got %+v", d)
	}
}

func TestAdmitNeverExceedsLimitInAnyWindow(t *testing.T) {
	clk := newClock()
	b := Budget{Limit: 10, Window: time.Minute, BackoffBase: time.Second, BackoffMax: time.Minute}
	g := New(b, WithClock(clk.Now))

	var admitted []time.Time
	steps := []time.Duration{0, time.Second, 7 * time.Second, 500 * time.Millisecond, 13 * time.Second}
	for i := 0; i < 500; i++ {
		clk.Advance(steps[i%len(steps)])
		if g.Admit("api", models.PriorityLow).Allowed {
			admitted = append(admitted, clk.Now())
		}
	}
	for i := range admitted {
		n := 0
		for j := i; j < len(admitted) && admitted[j].Sub(admitted[i]) < b.Window; j++ {
			n++
		}
		if n > b.Limit {
			t.Fatalf("%d admissions within one window starting at %v", n, admitted[i])
		}
	}
}

func TestElevatedPriorityHeadroom(t *testing.T) {
	clk := newClock()
	g := New(DefaultBudget(), WithClock(clk.Now))
	for i := 0; i < 100; i++ {
		if !g.Admit("api", models.PriorityNormal).Allowed {
			t.Fatalf("request %d denied", i)
		}
	}
	if g.Admit("api", models.PriorityLow).Allowed || g.Admit("api", models.PriorityNormal).Allowed {
		t.Fatalf("standard priority admitted past limit")
	}

	high := 0
	for g.Admit("api", models.PriorityHigh).Allowed {
		high++
	}
	if high != 10 {
		t.Fatalf("high priority admitted %d past limit, want 10", high)
	}
	critical := 0
	for g.Admit("api", models.PriorityCritical).Allowed {
		critical++
	}
	if critical != 10 {
		t.Fatalf("critical priority admitted %d past the high headroom, want 10", critical)
	}
	if s := g.Status("api"); s.InWindow != 120 {
		t.Fatalf("in window %d", s.InWindow)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	clk := newClock()
	b := DefaultBudget()
	b.BackoffBase = time.Second
	b.BackoffMax = 3 * time.Second
	g := New(b, WithClock(clk.Now))

	var prev time.Duration
	for i := 0; i < 3; i++ {
		d := g.RecordFailure("api", 429)
		if d <= prev {
			t.Fatalf("failure %d: backoff %v not greater than %v", i+1, d, prev)
		}
		if d > b.BackoffMax {
			t.Fatalf("failure %d: backoff %v above cap", i+1, d)
		}
		prev = d
	}
	if prev != b.BackoffMax {
		t.Fatalf("third backoff %v, want cap %v", prev, b.BackoffMax)
	}
	if d := g.RecordFailure("api", 500); d != b.BackoffMax {
		t.Fatalf("backoff should stay capped, got %v", d)
	}

	d := g.Admit("api", models.PriorityCritical)
	if d.Allowed || d.Reason != models.DenyBackoff || d.RetryAfter != b.BackoffMax {
		t.Fatalf("expected backoff denial, got %+v", d)
	}

	g.RecordSuccess("api")
	if d := g.Admit("api", models.PriorityNormal); !d.Allowed {
		t.Fatalf("success should clear backoff immediately, got %+v", d)
	}
	if s := g.Status("api"); s.ConsecutiveFailures != 0 || s.BackoffRemaining != 0 {
		t.Fatalf("status after success %+v", s)
	}
}

func TestBackoffExpires(t *testing.T) {
	clk := newClock()
	g := New(DefaultBudget(), WithClock(clk.Now))
	g.RecordFailure("api", 503)
	if g.Admit("api", models.PriorityNormal).Allowed {
		t.Fatalf("expected denial during backoff")
	}
	clk.Advance(time.Second)
	if !g.Admit("api", models.PriorityNormal).Allowed {
		t.Fatalf("expected admission after backoff elapsed")
	}
}

func TestDenialsDoNotMutateState(t *testing.T) {
	clk := newClock()
	g := New(Budget{Limit: 2, Window: time.Minute, BackoffBase: time.Second, BackoffMax: time.Minute}, WithClock(clk.Now))
	g.Admit("api", models.PriorityNormal)
	g.Admit("api", models.PriorityNormal)
	before := g.Status("api")
	for i := 0; i < 10; i++ {
		g.Admit("api", models.PriorityNormal)
	}
	if after := g.Status("api"); after != before {
		t.Fatalf("quota denials changed state: %+v -> %+v", before, after)
	}

	g.RecordFailure("api", 429)
	before = g.Status("api")
	for i := 0; i < 10; i++ {
		g.Admit("api", models.PriorityCritical)
	}
	if after := g.Status("api"); after != before {
		t.Fatalf("backoff denials changed state: %+v -> %+v", before, after)
	}
}

func TestAdmitConcurrent(t *testing.T) {
	clk := newClock()
	g := New(DefaultBudget(), WithClock(clk.Now))

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit("api", models.PriorityNormal).Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	if allowed != 100 {
		t.Fatalf("allowed %d, want exactly 100", allowed)
	}
}

func TestPerAPIBudgetsAreIndependent(t *testing.T) {
	clk := newClock()
	g := New(DefaultBudget(), WithClock(clk.Now), WithBudget("j_quants", Budget{Limit: 1, Window: time.Hour}))
	if !g.Admit("j_quants", models.PriorityNormal).Allowed {
		t.Fatalf("first j_quants request denied")
	}
	if g.Admit("j_quants", models.PriorityNormal).Allowed {
		t.Fatalf("j_quants limit not applied")
	}
	if !g.Admit("yahoo_finance", models.PriorityNormal).Allowed {
		t.Fatalf("yahoo_finance affected by j_quants budget")
	}
	g.RecordFailure("yahoo_finance", 500)
	if s := g.Status("j_quants"); s.ConsecutiveFailures != 0 {
		t.Fatalf("failure leaked across APIs")
	}
	snap := g.Snapshot()
	if len(snap) != 2 || snap[0].API != "j_quants" || snap[1].API != "yahoo_finance" {
		t.Fatalf("snapshot %+v", snap)
	}
}

func TestStatusUnknownAPI(t *testing.T) {
	g := New(DefaultBudget())
	s := g.Status("unseen")
	if s.Limit != 100 || s.InWindow != 0 || s.UsagePercent != 0 {
		t.Fatalf("status %+v", s)
	}
	if len(g.Snapshot()) != 0 {
		t.Fatalf("Status should not register the API")
	}
}

func TestBurstWindowDeniesWithHourlyRoom(t *testing.T) {
	clk := newClock()
	b := DefaultBudget()
	b.BurstLimit = 10
	b.BurstWindow = time.Minute
	g := New(b, WithClock(clk.Now))

	for i := 1; i <= 10; i++ {
		if d := g.Admit("yahoo_finance", models.PriorityNormal); !d.Allowed {
			t.Fatalf("request %d denied: %+v", i, d)
		}
		clk.Advance(time.Second)
	}
	d := g.Admit("yahoo_finance", models.PriorityCritical)
	if d.Allowed || d.Reason != models.DenyQuotaExceeded {
		t.Fatalf("11th request inside a minute should be denied, got %+v", d)
	}
	// oldest admission was at +0s, now is +10s
	if d.RetryAfter != 50*time.Second {
		t.Fatalf("retry after %s, want 50s", d.RetryAfter)
	}
	s := g.Status("yahoo_finance")
	if s.InWindow != 10 || s.Limit != 100 || s.InBurst != 10 || s.BurstLimit != 10 || s.BurstWindow != time.Minute {
		t.Fatalf("status %+v", s)
	}

	clk.Advance(50 * time.Second)
	if d := g.Admit("yahoo_finance", models.PriorityNormal); !d.Allowed {
		t.Fatalf("request after the minute rolled over denied: %+v", d)
	}
	if s := g.Status("yahoo_finance"); s.InWindow != 11 || s.InBurst != 10 {
		t.Fatalf("status after rollover %+v", s)
	}
}

func TestBurstWindowDisabledByDefault(t *testing.T) {
	clk := newClock()
	g := New(DefaultBudget(), WithClock(clk.Now))
	for i := 1; i <= 50; i++ {
		if !g.Admit("yahoo_finance", models.PriorityNormal).Allowed {
			t.Fatalf("request %d denied without a burst limit", i)
		}
	}
	if s := g.Status("yahoo_finance"); s.BurstLimit != 0 || s.InBurst != 0 {
		t.Fatalf("status %+v", s)
	}
}
