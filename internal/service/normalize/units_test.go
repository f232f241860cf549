package normalize

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"StockWatchdog/internal/domain/models"
)

func TestConvertUnit(t *testing.T) {
	cases := []struct {
		value  models.RawValue
		format models.FormatTag
		want   string
	}{
		{"0.045", models.FormatDecimalFraction, "0.045"},
		{"4.5", models.FormatPercent, "0.045"},
		{"4.5%", models.FormatPercentString, "0.045"},
		{" 4.5 % ", models.FormatPercentString, "0.045"},
		{"70.0", models.FormatPercent, "0.7"},
		{"15.5", models.FormatRatio, "15.5"},
		{"-15.5", models.FormatRatio, "-15.5"},
		{"1,234.5", models.FormatCurrency, "1234.5"},
		{"¥2,980", models.FormatCurrency, "2980"},
		{"3,900,000,000", models.FormatCount, "3900000000"},
	}
	for _, c := range cases {
		got, err := ConvertUnit(c.value, c.format)
		if err != nil {
			t.Fatalf("ConvertUnit(%q,%s) error: %v", c.value, c.format, err)
		}
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Fatalf("ConvertUnit(%q,%s)=%s want %s", c.value, c.format, got, c.want)
		}
	}
}

func TestConvertUnitDoesNotInferFromMagnitude(t *testing.T) {
	// 70 as a decimal fraction is 7000%; the normalizer must not second-guess it.
	got, err := ConvertUnit("70", models.FormatDecimalFraction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("got %s", got)
	}
}

func TestConvertUnitUnknownFormat(t *testing.T) {
	_, err := ConvertUnit("1.0", "basis-points")
	if !errors.Is(err, models.ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
	var fe *models.UnknownFormatError
	if !errors.As(err, &fe) || fe.Format != "basis-points" {
		t.Fatalf("expected UnknownFormatError, got %v", err)
	}
	if KnownFormat("basis-points") || !KnownFormat(models.FormatPercentString) {
		t.Fatalf("KnownFormat mismatch")
	}
}

func TestConvertUnitUnparseable(t *testing.T) {
	for _, v := range []models.RawValue{"", "N/A", "abc%", "--"} {
		if _, err := ConvertUnit(v, models.FormatPercentString); !errors.Is(err, models.ErrUnparseableValue) {
			t.Fatalf("ConvertUnit(%q) expected ErrUnparseableValue, got %v", v, err)
		}
	}
}

func TestPercentRoundTrip(t *testing.T) {
	f := decimal.RequireFromString("0.0725")
	if !ToPercent(f).Equal(decimal.RequireFromString("7.25")) {
		t.Fatalf("ToPercent got %s", ToPercent(f))
	}
	if !FromPercent(ToPercent(f)).Equal(f) {
		t.Fatalf("FromPercent(ToPercent(x)) != x")
	}
}
