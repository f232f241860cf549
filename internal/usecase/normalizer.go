package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/service/anomaly"
	"StockWatchdog/internal/service/normalize"
	"StockWatchdog/internal/service/record"
)

// Normalizer turns one raw payload into a DualTruthRecord:
// symbol canonicalization, unit conversion, plausibility checks, record assembly.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	symbols   *normalize.UnitNormalizer
	validator *anomaly.Validator
	builder   *record.Builder
	schema    models.Schema
}

func NewNormalizer(symbols *normalize.UnitNormalizer, validator *anomaly.Validator, schema models.Schema) *Normalizer {
	if len(schema) == 0 {
		schema = models.DefaultSchema()
	}
	return &Normalizer{
		symbols:   symbols,
		validator: validator,
		builder:   record.NewBuilder(schema),
		schema:    schema,
	}
}

// CanonicalSymbol exposes symbol normalization to callers that key caches by symbol.
func (n *Normalizer) CanonicalSymbol(raw string) (string, error) {
	s, err := n.symbols.NormalizeSymbol(raw)
	if err != nil {
		return "", &models.ValidationError{Symbol: raw, Err: err}
	}
	return s, nil
}

// Normalize fails only with *models.ValidationError. Range problems never fail;
// they come back as warnings on the record.
func (n *Normalizer) Normalize(p models.RawPayload) (*models.DualTruthRecord, error) {
	if strings.TrimSpace(p.Symbol) == "" {
		return nil, &models.ValidationError{Field: "symbol", Err: models.ErrMissingField}
	}
	if strings.TrimSpace(p.Source) == "" {
		return nil, &models.ValidationError{Symbol: p.Symbol, Field: "source", Err: models.ErrMissingField}
	}
	if p.FetchedAt.IsZero() {
		return nil, &models.ValidationError{Symbol: p.Symbol, Field: "fetched_at", Err: models.ErrMissingField}
	}
	symbol, err := n.CanonicalSymbol(p.Symbol)
	if err != nil {
		return nil, err
	}

	raw := p.Metrics(n.schema)
	values := make(map[string]models.NormalizedMetric, len(raw))
	var warnings []models.Warning
	for _, m := range raw {
		spec, known := n.schema.Lookup(m.Field)
		if !known {
			continue
		}
		if !spec.Accepts(m.Format) {
			return nil, &models.ValidationError{
				Symbol: symbol,
				Field:  m.Field,
				Err:    &models.UnknownFormatError{Field: m.Field, Format: m.Format},
			}
		}
		if strings.TrimSpace(string(m.Value)) == "" {
			values[m.Field] = models.NormalizedMetric{Status: models.StatusMissing}
			continue
		}

		v, err := normalize.ConvertUnit(m.Value, m.Format)
		switch {
		case err == nil:
			values[m.Field] = models.NormalizedMetric{Value: decimal.NewNullDecimal(v), Status: models.StatusOK}
		case errors.Is(err, models.ErrUnparseableValue):
			values[m.Field] = models.NormalizedMetric{Status: models.StatusUnparseable}
			warnings = append(warnings, models.Warning{
				Severity: models.SeverityWarning,
				Field:    m.Field,
				Message:  fmt.Sprintf("%s value %q is not a number, dropped", m.Field, string(m.Value)),
			})
		default:
			return nil, &models.ValidationError{Symbol: symbol, Field: m.Field, Err: err}
		}
	}

	validated, ruleWarnings := n.validator.Validate(values)
	warnings = append(warnings, ruleWarnings...)
	return n.builder.Build(symbol, p.Source, p.FetchedAt, raw, validated, warnings), nil
}
