package models

import (
	"encoding/json"
	"sort"
	"time"
)

// FormatTag tells the normalizer which unit convention a raw value uses.
type FormatTag string

const (
	FormatDecimalFraction FormatTag = "decimal-fraction" // 0.045 means 4.5%
	FormatPercent         FormatTag = "percent"          // 4.5 means 4.5%
	FormatPercentString   FormatTag = "percent-string"   // "4.5%"
	FormatRatio           FormatTag = "ratio"            // plain multiple, e.g. PER 15.5
	FormatCurrency        FormatTag = "currency"         // monetary amount, separators allowed
	FormatCount           FormatTag = "count"            // share counts, separators allowed
)

// MetricKind decides the canonical unit and the display rendering of a field.
type MetricKind string

const (
	KindRate     MetricKind = "rate"     // canonical decimal fraction, displayed as percent
	KindRatio    MetricKind = "ratio"    // canonical plain multiple
	KindCurrency MetricKind = "currency" // canonical amount
	KindCount    MetricKind = "count"    // canonical integer-ish count
)

// Canonical field names.
const (
	FieldDividendYield     = "dividend_yield"
	FieldPERatio           = "pe_ratio"
	FieldPBRatio           = "pb_ratio"
	FieldROE               = "roe"
	FieldProfitMargins     = "profit_margins"
	FieldOperatingMargins  = "operating_margins"
	FieldCurrentPrice      = "current_price"
	FieldMarketCap         = "market_cap"
	FieldSharesOutstanding = "shares_outstanding"
	FieldDividendRate      = "dividend_rate"
	FieldTurnoverRatio     = "turnover_ratio"
	FieldAvgTurnoverRatio  = "avg_turnover_ratio"
)

// MetricSpec declares one accepted field and the format tags it may arrive in.
type MetricSpec struct {
	Field   string
	Kind    MetricKind
	Formats []FormatTag
}

// Accepts reports whether f is a declared format for the field.
func (s MetricSpec) Accepts(f FormatTag) bool {
	for _, x := range s.Formats {
		if x == f {
			return true
		}
	}
	return false
}

// Schema is the fixed set of fields the core understands, in evaluation order.
type Schema []MetricSpec

// Lookup returns the spec for field.
func (s Schema) Lookup(field string) (MetricSpec, bool) {
	for _, spec := range s {
		if spec.Field == field {
			return spec, true
		}
	}
	return MetricSpec{}, false
}

var rateFormats = []FormatTag{FormatDecimalFraction, FormatPercent, FormatPercentString}

// DefaultSchema returns the field table used by the service.
func DefaultSchema() Schema {
	return Schema{
		{Field: FieldCurrentPrice, Kind: KindCurrency, Formats: []FormatTag{FormatCurrency}},
		{Field: FieldMarketCap, Kind: KindCurrency, Formats: []FormatTag{FormatCurrency}},
		{Field: FieldSharesOutstanding, Kind: KindCount, Formats: []FormatTag{FormatCount}},
		{Field: FieldDividendYield, Kind: KindRate, Formats: rateFormats},
		{Field: FieldDividendRate, Kind: KindCurrency, Formats: []FormatTag{FormatCurrency}},
		{Field: FieldPERatio, Kind: KindRatio, Formats: []FormatTag{FormatRatio}},
		{Field: FieldPBRatio, Kind: KindRatio, Formats: []FormatTag{FormatRatio}},
		{Field: FieldROE, Kind: KindRate, Formats: rateFormats},
		{Field: FieldProfitMargins, Kind: KindRate, Formats: rateFormats},
		{Field: FieldOperatingMargins, Kind: KindRate, Formats: rateFormats},
		{Field: FieldTurnoverRatio, Kind: KindRatio, Formats: []FormatTag{FormatRatio, FormatDecimalFraction}},
		{Field: FieldAvgTurnoverRatio, Kind: KindRatio, Formats: []FormatTag{FormatRatio, FormatDecimalFraction}},
	}
}

// RawValue is the literal text of a value as the source delivered it.
// JSON numbers keep their exact literal ("70.0" stays "70.0").
//
// Only the text survives decoding, not the JSON token kind: null and ""
// both decode to the empty value (treated as missing), and the number 70.0
// and the string "70.0" decode to the same RawValue. Re-encoding always
// produces a JSON string.
type RawValue string

func (v *RawValue) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*v = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = RawValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = RawValue(n.String())
	return nil
}

func (v RawValue) MarshalJSON() ([]byte, error) { return json.Marshal(string(v)) }

// RawMetric is one field of a fetch, immutable once produced.
type RawMetric struct {
	Field  string    `json:"field"`
	Value  RawValue  `json:"value"`
	Format FormatTag `json:"format"`
}

// RawField is the (value, format) pair an ingestor delivers per field.
type RawField struct {
	Value  RawValue  `json:"value"`
	Format FormatTag `json:"format"`
}

// RawPayload is everything one fetch produced for a single symbol.
type RawPayload struct {
	Symbol    string              `json:"symbol"`
	Source    string              `json:"source"`
	FetchedAt time.Time           `json:"fetched_at"`
	Fields    map[string]RawField `json:"fields"`
}

// Metrics returns the payload fields in a stable order: schema fields first,
// then unknown fields sorted by name.
func (p RawPayload) Metrics(schema Schema) []RawMetric {
	out := make([]RawMetric, 0, len(p.Fields))
	seen := make(map[string]struct{}, len(p.Fields))
	for _, spec := range schema {
		if f, ok := p.Fields[spec.Field]; ok {
			out = append(out, RawMetric{Field: spec.Field, Value: f.Value, Format: f.Format})
			seen[spec.Field] = struct{}{}
		}
	}
	rest := make([]string, 0)
	for name := range p.Fields {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		f := p.Fields[name]
		out = append(out, RawMetric{Field: name, Value: f.Value, Format: f.Format})
	}
	return out
}
