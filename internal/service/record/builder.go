package record

import (
	"time"

	"github.com/shopspring/decimal"

	"StockWatchdog/internal/domain/models"
)

const missingDisplay = "N/A"

// Builder assembles immutable DualTruthRecords and precomputes their read forms.
type Builder struct {
	schema models.Schema
}

func NewBuilder(schema models.Schema) *Builder {
	if len(schema) == 0 {
		schema = models.DefaultSchema()
	}
	return &Builder{schema: schema}
}

// Build merges raw values, normalized values and warnings into a new record.
// Nothing from a previous record for the same key is carried over.
func (b *Builder) Build(
	symbol, source string,
	fetchedAt time.Time,
	raw []models.RawMetric,
	normalized map[string]models.NormalizedMetric,
	warnings []models.Warning,
) *models.DualTruthRecord {
	forms := make(map[string]models.MetricForms, len(raw))
	for _, m := range raw {
		var kind models.MetricKind
		if spec, ok := b.schema.Lookup(m.Field); ok {
			kind = spec.Kind
		}
		n, known := normalized[m.Field]
		f := models.MetricForms{
			Kind:      kind,
			Raw:       string(m.Value),
			Canonical: n.Value,
		}
		switch {
		case !known:
			f.Display = string(m.Value)
		case !n.Value.Valid:
			f.Display = missingDisplay
		default:
			f.Display = Display(kind, n.Value.Decimal)
		}
		forms[m.Field] = f
	}
	return models.NewDualTruthRecord(symbol, source, fetchedAt, raw, normalized, forms, warnings)
}

// Display renders a canonical value for people: rates as percent, money at one decimal.
func Display(kind models.MetricKind, v decimal.Decimal) string {
	switch kind {
	case models.KindRate:
		return v.Shift(2).Round(2).String() + "%"
	case models.KindCurrency:
		return v.StringFixed(1)
	case models.KindCount:
		return v.Round(0).String()
	default:
		return v.Round(2).String()
	}
}
