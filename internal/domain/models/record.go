package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// MetricStatus is the validity flag attached to a normalized value.
type MetricStatus string

const (
	StatusOK          MetricStatus = "ok"
	StatusCorrected   MetricStatus = "corrected"
	StatusNulled      MetricStatus = "nulled"
	StatusUnparseable MetricStatus = "unparseable"
	StatusMissing     MetricStatus = "missing"
)

// NormalizedMetric holds a value in canonical unit, or null.
type NormalizedMetric struct {
	Value  decimal.NullDecimal `json:"value"`
	Status MetricStatus        `json:"status"`
}

// Valid reports whether the metric carries a usable value.
func (m NormalizedMetric) Valid() bool { return m.Value.Valid }

// MetricForms are the three read forms of a field, computed once at build time.
type MetricForms struct {
	Kind      MetricKind          `json:"kind,omitempty"`
	Raw       string              `json:"raw"`
	Canonical decimal.NullDecimal `json:"canonical"`
	Display   string              `json:"display"`
}

// RecordKey identifies the slot a record occupies; the next fetch for the
// same key replaces the record wholesale.
type RecordKey struct {
	Symbol string
	Source string
}

func (k RecordKey) String() string { return k.Symbol + ":" + k.Source }

// DualTruthRecord keeps the untouched source values next to their canonical
// forms. It is immutable; accessors return copies.
type DualTruthRecord struct {
	symbol     string
	source     string
	fetchedAt  time.Time
	order      []string
	raw        map[string]RawMetric
	normalized map[string]NormalizedMetric
	forms      map[string]MetricForms
	warnings   []Warning
}

// NewDualTruthRecord copies its inputs into a new record. Field order follows raw.
func NewDualTruthRecord(
	symbol, source string,
	fetchedAt time.Time,
	raw []RawMetric,
	normalized map[string]NormalizedMetric,
	forms map[string]MetricForms,
	warnings []Warning,
) *DualTruthRecord {
	r := &DualTruthRecord{
		symbol:     symbol,
		source:     source,
		fetchedAt:  fetchedAt,
		order:      make([]string, 0, len(raw)),
		raw:        make(map[string]RawMetric, len(raw)),
		normalized: make(map[string]NormalizedMetric, len(normalized)),
		forms:      make(map[string]MetricForms, len(forms)),
		warnings:   append([]Warning(nil), warnings...),
	}
	for _, m := range raw {
		if _, dup := r.raw[m.Field]; !dup {
			r.order = append(r.order, m.Field)
		}
		r.raw[m.Field] = m
	}
	for k, v := range normalized {
		r.normalized[k] = v
	}
	for k, v := range forms {
		r.forms[k] = v
	}
	return r
}

func (r *DualTruthRecord) Symbol() string       { return r.symbol }
func (r *DualTruthRecord) Source() string       { return r.source }
func (r *DualTruthRecord) FetchedAt() time.Time { return r.fetchedAt }
func (r *DualTruthRecord) Key() RecordKey       { return RecordKey{Symbol: r.symbol, Source: r.source} }

// Fields lists raw field names in input order.
func (r *DualTruthRecord) Fields() []string { return append([]string(nil), r.order...) }

// Raw returns the untouched source values.
func (r *DualTruthRecord) Raw() map[string]RawValue {
	out := make(map[string]RawValue, len(r.raw))
	for k, m := range r.raw {
		out[k] = m.Value
	}
	return out
}

// RawMetric returns the raw triple for field.
func (r *DualTruthRecord) RawMetric(field string) (RawMetric, bool) {
	m, ok := r.raw[field]
	return m, ok
}

// Normalized returns the canonical values keyed by field.
func (r *DualTruthRecord) Normalized() map[string]NormalizedMetric {
	out := make(map[string]NormalizedMetric, len(r.normalized))
	for k, v := range r.normalized {
		out[k] = v
	}
	return out
}

// Value returns the normalized metric for field.
func (r *DualTruthRecord) Value(field string) (NormalizedMetric, bool) {
	m, ok := r.normalized[field]
	return m, ok
}

// Warnings returns the warnings in the order they were raised.
func (r *DualTruthRecord) Warnings() []Warning { return append([]Warning(nil), r.warnings...) }

// WarningsFor returns the warnings attached to one field.
func (r *DualTruthRecord) WarningsFor(field string) []Warning {
	var out []Warning
	for _, w := range r.warnings {
		if w.Field == field {
			out = append(out, w)
		}
	}
	return out
}

// MaxSeverity returns the highest severity on the record, or "" when clean.
func (r *DualTruthRecord) MaxSeverity() Severity {
	var max Severity
	for _, w := range r.warnings {
		if w.Severity.Rank() > max.Rank() {
			max = w.Severity
		}
	}
	return max
}

func (r *DualTruthRecord) Forms(field string) (MetricForms, bool) {
	f, ok := r.forms[field]
	return f, ok
}

// RawForm is the value exactly as reported.
func (r *DualTruthRecord) RawForm(field string) (string, bool) {
	f, ok := r.forms[field]
	return f.Raw, ok
}

// CanonicalForm is the decimal value every downstream consumer must read.
func (r *DualTruthRecord) CanonicalForm(field string) decimal.NullDecimal {
	return r.forms[field].Canonical
}

// DisplayForm is the human rendering, e.g. "4.5%" for rates.
func (r *DualTruthRecord) DisplayForm(field string) string {
	return r.forms[field].Display
}

type recordJSON struct {
	Symbol     string                      `json:"symbol"`
	Source     string                      `json:"source"`
	FetchedAt  time.Time                   `json:"fetched_at"`
	Raw        []RawMetric                 `json:"raw"`
	Normalized map[string]NormalizedMetric `json:"normalized"`
	Forms      map[string]MetricForms      `json:"forms"`
	Warnings   []Warning                   `json:"warnings"`
}

func (r *DualTruthRecord) MarshalJSON() ([]byte, error) {
	raw := make([]RawMetric, 0, len(r.order))
	for _, f := range r.order {
		raw = append(raw, r.raw[f])
	}
	warnings := r.warnings
	if warnings == nil {
		warnings = []Warning{}
	}
	return json.Marshal(recordJSON{
		Symbol:     r.symbol,
		Source:     r.source,
		FetchedAt:  r.fetchedAt,
		Raw:        raw,
		Normalized: r.normalized,
		Forms:      r.forms,
		Warnings:   warnings,
	})
}

// UnmarshalJSON restores a record including its cached forms.
func (r *DualTruthRecord) UnmarshalJSON(b []byte) error {
	var v recordJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = *NewDualTruthRecord(v.Symbol, v.Source, v.FetchedAt, v.Raw, v.Normalized, v.Forms, v.Warnings)
	return nil
}
