package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimal = `
environment: test
backend:
  type: clickhouse
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.Port != 8080 || c.Server.ReadTimeout != 10*time.Second {
		t.Fatalf("server defaults not applied: %+v", c.Server)
	}
	if c.RateGate.Default.Limit != 100 || c.RateGate.Default.Window != time.Hour {
		t.Fatalf("rate gate defaults not applied: %+v", c.RateGate.Default)
	}
	if c.RateGate.Default.ReservedFraction != 0.1 || c.RateGate.Default.CriticalFraction != 0.2 {
		t.Fatalf("headroom defaults not applied: %+v", c.RateGate.Default)
	}
	if len(c.Normalizer.Suffixes) != 1 || c.Normalizer.Suffixes[0] != ".T" || c.Normalizer.CodeLength != 4 {
		t.Fatalf("normalizer defaults not applied: %+v", c.Normalizer)
	}
	if c.Anomaly.YieldMaxPct != 50 || c.Anomaly.CorrectionDivisor != 100 || c.Anomaly.RateMinPct != -100 {
		t.Fatalf("anomaly defaults not applied: %+v", c.Anomaly)
	}
	if c.Cache.TTL != 15*time.Minute {
		t.Fatalf("cache ttl %v", c.Cache.TTL)
	}
}

func TestParseOverridesAndInheritance(t *testing.T) {
	c, err := Parse([]byte(`
environment: test
backend:
  type: clickhouse
anomaly:
  correction_divisor: 10
rate_gate:
  default:
    limit: 50
    window: 30m
  apis:
    j_quants:
      limit: 500
normalizer:
  suffixes: [".T", ".OS"]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Anomaly.CorrectionDivisor != 10 {
		t.Fatalf("divisor %v", c.Anomaly.CorrectionDivisor)
	}
	jq := c.RateGate.APIs["j_quants"]
	if jq.Limit != 500 || jq.Window != 30*time.Minute || jq.BackoffMax != 5*time.Minute {
		t.Fatalf("per-api budget did not inherit: %+v", jq)
	}
	if len(c.Normalizer.Suffixes) != 2 {
		t.Fatalf("suffixes %v", c.Normalizer.Suffixes)
	}
}

func TestParsePerAPIExplicitZero(t *testing.T) {
	c, err := Parse([]byte(`
environment: test
backend:
  type: clickhouse
rate_gate:
  apis:
    yahoo_finance:
      limit: 100
      reserved_fraction: 0
      burst_limit: 10
    j_quants:
      limit: 500
      burst_limit: 30
      burst_window: 1m
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	yf := c.RateGate.APIs["yahoo_finance"]
	if yf.ReservedFraction != 0 || yf.CriticalFraction != 0.2 {
		t.Fatalf("explicit zero reserved_fraction was replaced: %+v", yf)
	}
	if yf.BurstLimit != 10 || yf.BurstWindow != time.Minute || yf.Window != time.Hour {
		t.Fatalf("yahoo_finance budget %+v", yf)
	}
	jq := c.RateGate.APIs["j_quants"]
	if jq.Limit != 500 || jq.ReservedFraction != 0.1 || jq.BurstLimit != 30 {
		t.Fatalf("j_quants budget %+v", jq)
	}
	if c.RateGate.Default.BurstLimit != 0 {
		t.Fatalf("burst limit should default to disabled: %+v", c.RateGate.Default)
	}
}

func TestValidate(t *testing.T) {
	bad := map[string]string{
		"no environment":    "backend:\n  type: clickhouse\n",
		"bad backend":       "environment: test\nbackend:\n  type: postgres\n",
		"kafka no brokers":  "environment: test\nbackend:\n  type: kafka\n",
		"zero divisor":      "environment: test\nanomaly:\n  correction_divisor: -1\n",
		"zero limit":        "environment: test\nrate_gate:\n  default:\n    limit: -5\n",
		"inverted yield":    "environment: test\nanomaly:\n  yield_max_pct: -1\n",
		"burst over window": "environment: test\nrate_gate:\n  apis:\n    x:\n      window: 1m\n      burst_limit: 5\n      burst_window: 2m\n",
	}
	for name, doc := range bad {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SYMBOLS", "9432,1928")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Upstream.Symbols) != 2 || c.Upstream.Symbols[1] != "1928" {
		t.Fatalf("symbols %v", c.Upstream.Symbols)
	}
	if !c.Redis.Enabled || c.Redis.Addr != "redis:6379" {
		t.Fatalf("redis %+v", c.Redis)
	}
	if c.Log.Level != "debug" {
		t.Fatalf("log level %s", c.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
