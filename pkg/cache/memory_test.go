package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryTTL(t *testing.T) {
	clk := &clock{t: time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clk.now), WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if b, err := mc.Get(ctx, "k"); err != nil || string(b) != "v" {
		t.Fatalf("get: %q %v", b, err)
	}
	clk.advance(time.Minute)
	if _, err := mc.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
	if mc.Len() != 0 {
		t.Fatalf("expired entry not removed")
	}
}

func TestMemoryLRUEviction(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", []byte("1"), time.Hour)
	_ = mc.Set(ctx, "b", []byte("2"), time.Hour)
	if _, err := mc.Get(ctx, "a"); err != nil {
		t.Fatalf("get a: %v", err)
	}
	_ = mc.Set(ctx, "c", []byte("3"), time.Hour)

	if _, err := mc.Get(ctx, "b"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	for _, k := range []string{"a", "c"} {
		if _, err := mc.Get(ctx, k); err != nil {
			t.Fatalf("expected %s present: %v", k, err)
		}
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	in := []byte("abc")
	_ = mc.Set(ctx, "k", in, time.Hour)
	in[0] = 'X'
	out, _ := mc.Get(ctx, "k")
	out[1] = 'Y'
	again, _ := mc.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("cache shares memory with callers: %q", again)
	}
}

func TestMemoryPurgeAndDelete(t *testing.T) {
	clk := &clock{t: time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clk.now), WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "short", []byte("1"), time.Second)
	_ = mc.Set(ctx, "long", []byte("2"), time.Hour)
	_ = mc.Set(ctx, "gone", []byte("3"), time.Hour)
	_ = mc.Delete(ctx, "gone")
	clk.advance(2 * time.Second)
	mc.Purge()
	if mc.Len() != 1 {
		t.Fatalf("len %d, want 1", mc.Len())
	}
}

func TestJSONHelpers(t *testing.T) {
	mc := NewMemoryCache(WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()

	type rec struct{ Symbol string }
	if err := SetJSON(ctx, mc, GenerateKey("record", "9432", "yahoo"), rec{Symbol: "9432"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got rec
	if err := GetJSON(ctx, mc, "record:9432:yahoo", &got); err != nil || got.Symbol != "9432" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if err := GetJSON(ctx, mc, "record:none", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestLayeredReadThrough(t *testing.T) {
	l2 := NewMemoryCache(WithMemoryCleanup(0))
	lc := NewLayeredCache(l2, WithLayeredL1TTL(time.Minute))
	defer lc.Close()
	ctx := context.Background()

	_ = l2.Set(ctx, "k", []byte("from-l2"), time.Hour)
	if b, err := lc.Get(ctx, "k"); err != nil || string(b) != "from-l2" {
		t.Fatalf("read-through: %q %v", b, err)
	}
	_ = l2.Delete(ctx, "k")
	if b, err := lc.Get(ctx, "k"); err != nil || string(b) != "from-l2" {
		t.Fatalf("expected L1 hit after L2 delete: %q %v", b, err)
	}

	if err := lc.Set(ctx, "w", []byte("x"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := l2.Get(ctx, "w"); err != nil {
		t.Fatalf("write-through to L2 missing: %v", err)
	}
	_ = lc.Delete(ctx, "w")
	if _, err := lc.Get(ctx, "w"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}
