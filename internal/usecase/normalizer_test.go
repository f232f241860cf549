package usecase

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/service/anomaly"
)

func TestNormalizePercentYieldAboveMax(t *testing.T) {
	n := newTestNormalizer(anomaly.DefaultPolicy())
	for _, raw := range []string{"50.1", "70.0", "250", "4999.9"} {
		rec, err := n.Normalize(payload("9432.T", map[string]models.RawField{
			models.FieldDividendYield: {Value: models.RawValue(raw), Format: models.FormatPercent},
		}))
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		got := rec.CanonicalForm(models.FieldDividendYield)
		want := decimal.RequireFromString(raw).Div(decimal.NewFromInt(100))
		if !got.Valid || !got.Decimal.Shift(2).Equal(want) {
			t.Fatalf("%s: canonical %v, want %s%%", raw, got, want)
		}
		ws := rec.WarningsFor(models.FieldDividendYield)
		if len(ws) != 1 || ws[0].Severity != models.SeverityCritical {
			t.Fatalf("%s: warnings %+v", raw, ws)
		}
	}
}

func TestNormalizeYieldScenario(t *testing.T) {
	p := anomaly.DefaultPolicy()
	p.CorrectionDivisor = decimal.NewFromInt(10)
	rec, err := newTestNormalizer(p).Normalize(payload("9432", map[string]models.RawField{
		models.FieldDividendYield: {Value: "70.0", Format: models.FormatPercent},
	}))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got := rec.DisplayForm(models.FieldDividendYield); got != "7%" {
		t.Fatalf("display %q", got)
	}
	if got := rec.CanonicalForm(models.FieldDividendYield); !got.Decimal.Equal(decimal.RequireFromString("0.07")) {
		t.Fatalf("decimal form %v", got)
	}
	if raw, _ := rec.RawForm(models.FieldDividendYield); raw != "70.0" {
		t.Fatalf("raw form %q", raw)
	}
	ws := rec.Warnings()
	if len(ws) != 1 || !strings.Contains(ws[0].Message, "70.0 → 7.0") {
		t.Fatalf("warnings %+v", ws)
	}
}

func TestNormalizeNegativePE(t *testing.T) {
	rec, err := newTestNormalizer(anomaly.DefaultPolicy()).Normalize(payload("9432", map[string]models.RawField{
		models.FieldPERatio:      {Value: "-15.5", Format: models.FormatRatio},
		models.FieldCurrentPrice: {Value: "2,980", Format: models.FormatCurrency},
	}))
	if err != nil {
		t.Fatalf("negative PE must not fail the record: %v", err)
	}
	if v, _ := rec.Value(models.FieldPERatio); v.Valid() || v.Status != models.StatusNulled {
		t.Fatalf("pe_ratio = %+v, want nulled", v)
	}
	ws := rec.Warnings()
	if len(ws) != 1 || ws[0].Field != models.FieldPERatio || ws[0].Severity != models.SeverityWarning {
		t.Fatalf("warnings %+v", ws)
	}
	if raw, _ := rec.RawForm(models.FieldPERatio); raw != "-15.5" {
		t.Fatalf("raw PE lost: %q", raw)
	}
}

func TestNormalizeRawUnchanged(t *testing.T) {
	fields := map[string]models.RawField{
		models.FieldDividendYield: {Value: "4.5%", Format: models.FormatPercentString},
		models.FieldROE:           {Value: "1.85", Format: models.FormatDecimalFraction},
		models.FieldMarketCap:     {Value: "¥14,500,000,000,000", Format: models.FormatCurrency},
		"sector":                  {Value: "Communication Services"},
	}
	rec, err := newTestNormalizer(anomaly.DefaultPolicy()).Normalize(payload("9432", fields))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	raw := rec.Raw()
	for k, f := range fields {
		if raw[k] != f.Value {
			t.Fatalf("raw %s changed: %q -> %q", k, f.Value, raw[k])
		}
	}
	if _, ok := rec.Value("sector"); ok {
		t.Fatalf("unknown field must stay raw-only")
	}
	if v, _ := rec.Value(models.FieldROE); v.Valid() {
		t.Fatalf("ROE 185%% should be nulled, got %v", v.Value)
	}
}

func TestNormalizeStructuralErrors(t *testing.T) {
	n := newTestNormalizer(anomaly.DefaultPolicy())
	cases := []struct {
		name string
		p    models.RawPayload
		want error
	}{
		{"missing symbol", payload("", nil), models.ErrMissingField},
		{"missing source", models.RawPayload{Symbol: "9432"}, models.ErrMissingField},
		{"missing fetched_at", models.RawPayload{Symbol: "9432", Source: "yahoo_finance"}, models.ErrMissingField},
		{"bad symbol", payload("NTT", nil), models.ErrInvalidSymbol},
		{"unknown format", payload("9432", map[string]models.RawField{
			models.FieldPERatio: {Value: "15", Format: "per-mille"},
		}), models.ErrUnknownFormat},
		{"format not allowed for field", payload("9432", map[string]models.RawField{
			models.FieldCurrentPrice: {Value: "15%", Format: models.FormatPercentString},
		}), models.ErrUnknownFormat},
	}
	for _, tc := range cases {
		_, err := n.Normalize(tc.p)
		var ve *models.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected *ValidationError, got %v", tc.name, err)
		}
		if !errors.Is(err, tc.want) || !models.IsStructural(err) {
			t.Fatalf("%s: error %v does not match %v", tc.name, err, tc.want)
		}
	}
}

func TestNormalizeUnparseableAndMissing(t *testing.T) {
	rec, err := newTestNormalizer(anomaly.DefaultPolicy()).Normalize(payload("9432", map[string]models.RawField{
		models.FieldPBRatio:      {Value: "n/a", Format: models.FormatRatio},
		models.FieldDividendRate: {Value: "", Format: models.FormatCurrency},
	}))
	if err != nil {
		t.Fatalf("unparseable values are not structural: %v", err)
	}
	if v, _ := rec.Value(models.FieldPBRatio); v.Valid() || v.Status != models.StatusUnparseable {
		t.Fatalf("pb_ratio = %+v", v)
	}
	if v, _ := rec.Value(models.FieldDividendRate); v.Valid() || v.Status != models.StatusMissing {
		t.Fatalf("dividend_rate = %+v", v)
	}
	ws := rec.Warnings()
	if len(ws) != 1 || ws[0].Field != models.FieldPBRatio || ws[0].Severity != models.SeverityWarning {
		t.Fatalf("warnings %+v", ws)
	}
	if rec.DisplayForm(models.FieldDividendRate) != "N/A" {
		t.Fatalf("display of missing value %q", rec.DisplayForm(models.FieldDividendRate))
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := newTestNormalizer(anomaly.DefaultPolicy())
	p := payload("9432", map[string]models.RawField{
		models.FieldDividendYield:     {Value: "70", Format: models.FormatPercent},
		models.FieldPERatio:           {Value: "-3", Format: models.FormatRatio},
		models.FieldCurrentPrice:      {Value: "100", Format: models.FormatCurrency},
		models.FieldSharesOutstanding: {Value: "1,000", Format: models.FormatCount},
		models.FieldMarketCap:         {Value: "200000", Format: models.FormatCurrency},
	})
	a, _ := n.Normalize(p)
	b, _ := n.Normalize(p)
	ja, _ := a.MarshalJSON()
	jb, _ := b.MarshalJSON()
	if string(ja) != string(jb) {
		t.Fatalf("normalize is not deterministic:\n%s\n%s", ja, jb)
	}
	if len(a.Warnings()) != 3 {
		t.Fatalf("expected yield, PE and market cap warnings, got %+v", a.Warnings())
	}
}

func TestNormalizeRejectsZeroFetchedAt(t *testing.T) {
	p := payload("9432", nil)
	p.FetchedAt = time.Time{}
	_, err := newTestNormalizer(anomaly.DefaultPolicy()).Normalize(p)
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Field != "fetched_at" || !errors.Is(err, models.ErrMissingField) {
		t.Fatalf("expected fetched_at ValidationError, got %v", err)
	}
}
