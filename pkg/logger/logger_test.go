package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.InfoLevel).With(String("component", "gate"))
	l.Info("admitted",
		String("api", "yahoo_finance"),
		Int("in_window", 3),
		Float64("usage_pct", 2.5),
		Duration("retry_after", 1500*time.Millisecond),
		Bool("allowed", true),
		Error(errors.New("boom")),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	want := map[string]interface{}{
		"message":     "admitted",
		"component":   "gate",
		"api":         "yahoo_finance",
		"in_window":   float64(3),
		"usage_pct":   2.5,
		"retry_after": float64(1500),
		"allowed":     true,
		"error":       "boom",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("field %s = %v want %v", k, got[k], v)
		}
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.WarnLevel)
	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}
	l.Warn("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected warn line")
	}
	Nop().Error("discarded")
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud", Output: "stdout"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
