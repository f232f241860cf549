package normalize

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"StockWatchdog/internal/domain/models"
)

var (
	hundred = decimal.NewFromInt(100)

	currencyReplacer = strings.NewReplacer(",", "", "_", "", " ", "", "¥", "", "$", "", "円", "", "￥", "")
	countReplacer    = strings.NewReplacer(",", "", "_", "", " ", "", "株", "")
)

// ConvertUnit converts a raw value to its canonical unit using the caller's
// format tag. It never looks at the magnitude: "70" tagged percent is 0.70.
func ConvertUnit(value models.RawValue, format models.FormatTag) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(value))

	switch format {
	case models.FormatDecimalFraction, models.FormatRatio:
		return parse(s)
	case models.FormatPercent:
		d, err := parse(s)
		if err != nil {
			return decimal.Zero, err
		}
		return d.Shift(-2), nil
	case models.FormatPercentString:
		d, err := parse(strings.TrimSpace(strings.TrimSuffix(s, "%")))
		if err != nil {
			return decimal.Zero, err
		}
		return d.Shift(-2), nil
	case models.FormatCurrency:
		return parse(currencyReplacer.Replace(s))
	case models.FormatCount:
		return parse(countReplacer.Replace(s))
	default:
		return decimal.Zero, &models.UnknownFormatError{Format: format}
	}
}

// KnownFormat reports whether ConvertUnit understands f.
func KnownFormat(f models.FormatTag) bool {
	switch f {
	case models.FormatDecimalFraction, models.FormatPercent, models.FormatPercentString,
		models.FormatRatio, models.FormatCurrency, models.FormatCount:
		return true
	}
	return false
}

// ToPercent renders a canonical fraction on the percent scale (0.045 -> 4.5).
func ToPercent(fraction decimal.Decimal) decimal.Decimal { return fraction.Shift(2) }

// FromPercent is the inverse of ToPercent.
func FromPercent(pct decimal.Decimal) decimal.Decimal { return pct.Div(hundred) }

func parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", models.ErrUnparseableValue)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", models.ErrUnparseableValue, s)
	}
	return d, nil
}
