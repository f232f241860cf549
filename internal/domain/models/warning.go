package models

import "github.com/shopspring/decimal"

// Severity is the tier attached to a detected anomaly.
type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities so callers can filter by threshold.
func (s Severity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Warning describes one anomaly found while validating a record.
// Original and Corrected are null when the value was missing or dropped.
type Warning struct {
	Severity  Severity            `json:"severity"`
	Field     string              `json:"field"`
	Message   string              `json:"message"`
	Original  decimal.NullDecimal `json:"original_value"`
	Corrected decimal.NullDecimal `json:"corrected_value"`
}
