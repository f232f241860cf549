package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority classes for outbound requests. Low and Normal are standard traffic.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Elevated reports whether p may use the reserved headroom.
func (p Priority) Elevated() bool { return p >= PriorityHigh }

// ParsePriority maps a config or request string to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// DenyReason explains why an admission was refused.
type DenyReason string

const (
	DenyNone          DenyReason = ""
	DenyBackoff       DenyReason = "backoff"
	DenyQuotaExceeded DenyReason = "quota_exceeded"
)

// BacksOff reports whether a failed call with this upstream status should put
// the API into backoff. 429, 403, 5xx and 0 (no response) back off; any other
// status is a per-request failure and leaves the gate alone.
func BacksOff(status int) bool {
	switch {
	case status == 0, status == 403, status == 429:
		return true
	default:
		return status >= 500
	}
}

// Decision is the result of one admission check. RetryAfter is advisory.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     DenyReason    `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after"`
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason DenyReason, retryAfter time.Duration) Decision {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{Reason: reason, RetryAfter: retryAfter}
}

// MarshalJSON reports RetryAfter in seconds.
func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Allowed    bool       `json:"allowed"`
		Reason     DenyReason `json:"reason,omitempty"`
		RetryAfter float64    `json:"retry_after_seconds"`
	}{d.Allowed, d.Reason, d.RetryAfter.Seconds()})
}

// BudgetStatus is a read-only snapshot of one API budget.
type BudgetStatus struct {
	API                 string        `json:"api"`
	InWindow            int           `json:"requests_in_window"`
	Limit               int           `json:"limit"`
	Window              time.Duration `json:"window"`
	UsagePercent        float64       `json:"usage_percent"`
	BackoffRemaining    time.Duration `json:"backoff_remaining"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	InBurst             int           `json:"burst_requests_in_window"`
	BurstLimit          int           `json:"burst_limit"`
	BurstWindow         time.Duration `json:"burst_window"`
}

// MarshalJSON reports durations in seconds.
func (s BudgetStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		API                 string  `json:"api"`
		InWindow            int     `json:"requests_in_window"`
		Limit               int     `json:"limit"`
		Window              float64 `json:"window_seconds"`
		UsagePercent        float64 `json:"usage_percent"`
		BackoffRemaining    float64 `json:"backoff_remaining_seconds"`
		ConsecutiveFailures int     `json:"consecutive_failures"`
		InBurst             int     `json:"burst_requests_in_window,omitempty"`
		BurstLimit          int     `json:"burst_limit,omitempty"`
		BurstWindow         float64 `json:"burst_window_seconds,omitempty"`
	}{s.API, s.InWindow, s.Limit, s.Window.Seconds(), s.UsagePercent, s.BackoffRemaining.Seconds(), s.ConsecutiveFailures,
		s.InBurst, s.BurstLimit, s.BurstWindow.Seconds()})
}
